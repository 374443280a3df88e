// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"time"

	"digicon-go/internal/apperr"
	"digicon-go/internal/model"
	"digicon-go/internal/repository"
	"digicon-go/pkg/database"
	"digicon-go/pkg/hash"
	"digicon-go/pkg/log"
	"digicon-go/pkg/storage"
	"digicon-go/pkg/token"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProfileUpdate 描述一次资料更新中允许变更的字段。nil 表示不变更。
// EmployeeCode 和 Role 不在其中：员工编号分配后不可变，角色变更不开放给本接口。
type ProfileUpdate struct {
	FullName    *string
	PhoneNumber *string
	Photo       *multipart.FileHeader
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(ctx context.Context, username, password, fullName, phoneNumber string) (*model.User, error)
	Login(username, password string) (accessToken, refreshToken string, err error)
	Logout(tokenString string) error
	// IsTokenBlacklisted 报告 token 是否已因登出被吊销。
	IsTokenBlacklisted(tokenString string) (bool, error)
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	GetProfile(username string) (*model.User, error)
	UpdateProfile(ctx context.Context, user *model.User, update ProfileUpdate) (*model.User, error)
	ChangePassword(user *model.User, newPassword string) error
	ResetPassword(userID uint, newPassword, confirmPassword string) error
	ListUsers() ([]model.User, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	jwtManager *token.JWTManager
	store      storage.ObjectStore
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager, store storage.ObjectStore) UserService {
	return &userService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		store:      store,
	}
}

// Register 处理用户注册的业务逻辑。
// 员工编号在仓储层的创建事务内一次性分配（格式 EP-ID-NNNN）；
// 并发注册撞上唯一约束时重试整个分配并持久化序列。
func (s *userService) Register(ctx context.Context, username, password, fullName, phoneNumber string) (*model.User, error) {
	// 1. 检查用户名是否已存在
	_, err := s.userRepo.FindByUsername(username)
	if err == nil {
		return nil, apperr.Validationf("用户名已存在")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	// 3. 创建新用户，默认角色为 user
	newUser := &model.User{
		Username:    username,
		Password:    hashedPassword,
		Role:        model.RoleUser,
		FullName:    fullName,
		PhoneNumber: phoneNumber,
	}

	for attempt := 1; attempt <= maxCodeRetries; attempt++ {
		newUser.EmployeeCode = ""
		err = s.userRepo.Create(ctx, newUser)
		if err == nil {
			log.Infof("[UserService] 用户注册成功, username: %s, employeeCode: %s", username, newUser.EmployeeCode)
			return newUser, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Wrap(apperr.ErrPersistence, err)
		}
		// 唯一约束冲突可能来自用户名而不是员工编号：并发注册同名用户时
		// 复查用户名，命中则按校验错误返回而不是烧掉编号重试次数
		if _, ferr := s.userRepo.FindByUsername(username); ferr == nil {
			return nil, apperr.Validationf("用户名已存在")
		}
		log.Warnf("[UserService] 员工编号冲突，第 %d 次重试, username: %s", attempt, username)
	}
	return nil, apperr.Wrap(apperr.ErrPersistence, err)
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(username, password string) (accessToken, refreshToken string, err error) {
	// 1. 查找用户
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", errors.New("invalid credentials")
		}
		return "", "", err
	}

	// 2. 验证密码
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", errors.New("invalid credentials")
	}

	// 3. 生成 access token 和 refresh token
	accessToken, err = s.jwtManager.GenerateToken(user.ID, user.Username, string(user.Role))
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.jwtManager.GenerateRefreshToken(user.ID, user.Username, string(user.Role))
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

// Logout 处理用户登出逻辑，将 token 加入 Redis 黑名单。
// AuthMiddleware 会拒绝黑名单中的 token，实现登出即吊销。
func (s *userService) Logout(tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return err
	}
	// token 的剩余有效期作为 Redis key 的过期时间
	expiration := time.Until(claims.ExpiresAt.Time)
	return database.RDB.Set(context.Background(), "blacklist:"+tokenString, "true", expiration).Err()
}

// IsTokenBlacklisted 检查 token 是否在 Redis 黑名单中。
func (s *userService) IsTokenBlacklisted(tokenString string) (bool, error) {
	exists, err := database.RDB.Exists(context.Background(), "blacklist:"+tokenString).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// RefreshToken 验证 refresh token 并签发新的 access token 和 refresh token。
func (s *userService) RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error) {
	claims, err := s.jwtManager.VerifyToken(refreshTokenString)
	if err != nil {
		return "", "", errors.New("invalid refresh token")
	}

	user, err := s.userRepo.FindByUsername(claims.Username)
	if err != nil {
		return "", "", errors.New("user not found")
	}

	newAccessToken, err = s.jwtManager.GenerateToken(user.ID, user.Username, string(user.Role))
	if err != nil {
		return "", "", err
	}
	newRefreshToken, err = s.jwtManager.GenerateRefreshToken(user.ID, user.Username, string(user.Role))
	if err != nil {
		return "", "", err
	}

	return newAccessToken, newRefreshToken, nil
}

// GetProfile 根据用户名获取用户详细信息。
func (s *userService) GetProfile(username string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile 更新用户资料。头像文件会被写入对象存储，记录中只保存对象 key。
func (s *userService) UpdateProfile(ctx context.Context, user *model.User, update ProfileUpdate) (*model.User, error) {
	if update.FullName != nil {
		user.FullName = *update.FullName
	}
	if update.PhoneNumber != nil {
		user.PhoneNumber = *update.PhoneNumber
	}
	if update.Photo != nil {
		f, err := update.Photo.Open()
		if err != nil {
			return nil, apperr.Validationf("无法读取头像文件: %v", err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, apperr.Validationf("无法读取头像文件: %v", err)
		}
		key := fmt.Sprintf("profiles/%s%s", uuid.NewString(), filepath.Ext(update.Photo.Filename))
		if err := s.store.Put(ctx, key, data, ""); err != nil {
			return nil, apperr.Wrap(apperr.ErrPersistence, err)
		}
		user.ProfilePhoto = key
	}

	if err := s.userRepo.Update(user); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	log.Infof("[UserService] 用户资料更新成功, username: %s", user.Username)
	return user, nil
}

// ChangePassword 处理用户自助修改密码。
func (s *userService) ChangePassword(user *model.User, newPassword string) error {
	if newPassword == "" {
		return apperr.Validationf("新密码不能为空")
	}
	hashedPassword, err := hash.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.Password = hashedPassword
	if err := s.userRepo.Update(user); err != nil {
		return apperr.Wrap(apperr.ErrPersistence, err)
	}
	log.Infof("[UserService] 用户密码已更新, username: %s", user.Username)
	return nil
}

// ResetPassword 处理协助重置密码：校验两次输入一致后直接覆盖目标用户的密码。
func (s *userService) ResetPassword(userID uint, newPassword, confirmPassword string) error {
	if newPassword == "" || confirmPassword == "" {
		return apperr.Validationf("新密码和确认密码都不能为空")
	}
	if newPassword != confirmPassword {
		return apperr.Validationf("两次输入的密码不一致")
	}

	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Wrap(apperr.ErrNotFound, err)
		}
		return apperr.Wrap(apperr.ErrPersistence, err)
	}

	hashedPassword, err := hash.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.Password = hashedPassword
	if err := s.userRepo.Update(user); err != nil {
		return apperr.Wrap(apperr.ErrPersistence, err)
	}
	log.Infof("[UserService] 用户密码已重置, userID: %d", userID)
	return nil
}

// ListUsers 检索全部用户。
func (s *userService) ListUsers() ([]model.User, error) {
	users, err := s.userRepo.FindAll()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	return users, nil
}
