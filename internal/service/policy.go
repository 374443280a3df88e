// Package service 包含了应用的业务逻辑层。
package service

import "digicon-go/internal/model"

// Owned 由所有携带归属用户的资源实现（MediaBatch、Media）。
// 没有归属信息的对象不实现该接口，对它们的变更一律拒绝。
type Owned interface {
	OwnedBy() uint
}

// AccessPolicy 集中了基于角色和归属关系的授权判断。
// actor 总是作为显式参数传入，不从任何全局状态读取。
type AccessPolicy struct{}

// NewAccessPolicy 创建一个新的 AccessPolicy 实例。
func NewAccessPolicy() *AccessPolicy {
	return &AccessPolicy{}
}

// CanView 判断 actor 是否可以查看资源。
// admin/editor/viewer 可以查看全部资源；user 只能查看归属自己的资源。
func (p *AccessPolicy) CanView(actor *model.User, resource Owned) bool {
	if actor == nil || resource == nil {
		return false
	}
	switch actor.Role {
	case model.RoleAdmin, model.RoleEditor, model.RoleViewer:
		return true
	case model.RoleUser:
		return resource.OwnedBy() == actor.ID
	}
	// 未知角色一律拒绝
	return false
}

// CanMutate 判断 actor 是否可以变更资源。
// 变更权以查看权为前提；viewer 和 user 只能变更归属自己的资源。
func (p *AccessPolicy) CanMutate(actor *model.User, resource Owned) bool {
	if !p.CanView(actor, resource) {
		return false
	}
	switch actor.Role {
	case model.RoleAdmin, model.RoleEditor:
		return true
	case model.RoleViewer, model.RoleUser:
		return resource.OwnedBy() == actor.ID
	}
	return false
}
