package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"clipsync/internal/domain"
	"clipsync/internal/repository"
)

const minPasswordLength = 8

// ErrRegistrationFailed 表示邮箱已被注册
var ErrRegistrationFailed = ConflictError("registration failed: email already exists")

// LoginResult 是登录成功后返回给客户端的信息
type LoginResult struct {
	Token  string         `json:"token"`
	User   *domain.User   `json:"user"`
	Device *domain.Device `json:"device"`
}

// AuthService 负责用户注册、登录以及设备登记。
type AuthService struct {
	userRepo     repository.UserRepository
	deviceRepo   repository.DeviceRepository
	tokens       TokenService
	storeTimeout time.Duration
}

// NewAuthService 创建 AuthService 实例。
func NewAuthService(userRepo repository.UserRepository, deviceRepo repository.DeviceRepository, tokens TokenService, storeTimeout time.Duration) *AuthService {
	if userRepo == nil {
		panic("UserRepository cannot be nil for AuthService")
	}
	if deviceRepo == nil {
		panic("DeviceRepository cannot be nil for AuthService")
	}
	if tokens == nil {
		panic("TokenService cannot be nil for AuthService")
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &AuthService{
		userRepo:     userRepo,
		deviceRepo:   deviceRepo,
		tokens:       tokens,
		storeTimeout: storeTimeout,
	}
}

// Register 处理用户注册，同时为当前客户端登记第一台设备。
func (s *AuthService) Register(ctx context.Context, email, password, userAgent string) (*domain.User, *domain.Device, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	logCtx := logrus.WithField("email", email)

	// 1. 基本验证
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, ValidationError("a valid email is required")
	}
	if len(password) < minPasswordLength {
		return nil, nil, ValidationError("password must be at least %d characters", minPasswordLength)
	}

	// 2. 哈希密码
	hashedPassword, err := hashPassword(password)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password during registration")
		return nil, nil, ErrInternalServer
	}

	// 3. 在同一事务中保存用户和第一台设备
	user := &domain.User{
		ID:       uuid.NewString(),
		Email:    email,
		Password: hashedPassword,
		IsActive: true,
	}
	device := newDevice(user.ID, userAgent)
	logCtx = logCtx.WithFields(logrus.Fields{"user_id": user.ID, "device_id": device.ID})

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err = s.userRepo.CreateWithDevice(storeCtx, user, device)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).Warn("Registration failed: email already exists")
			return nil, nil, ErrRegistrationFailed
		}
		logCtx.WithError(err).Error("Database error during user registration")
		return nil, nil, mapRepoError(err, nil)
	}

	logCtx.Info("User registered successfully")
	user.Password = "" // 清除密码哈希再返回
	return user, device, nil
}

// Login 校验密码，查找或登记与 User-Agent 匹配的设备，并签发 token。
func (s *AuthService) Login(ctx context.Context, email, password, userAgent string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	logCtx := logrus.WithField("email", email)

	// 1. 查找用户
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	user, err := s.userRepo.FindByEmail(storeCtx, email)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.WithError(err).Warn("Login attempt failed: User not found")
			return nil, ErrAuthenticationFailed // 对客户端统一返回认证失败
		}
		logCtx.WithError(err).Error("Login attempt failed: Error finding user")
		return nil, mapRepoError(err, nil)
	}

	// 2. 验证密码
	if !checkPassword(password, user.Password) {
		logCtx.Warn("Login attempt failed: Invalid password")
		return nil, ErrAuthenticationFailed
	}
	if !user.IsActive {
		logCtx.Warn("Login attempt failed: User is inactive")
		return nil, ForbiddenError("user account is inactive")
	}
	logCtx = logCtx.WithField("user_id", user.ID)

	// 3. 查找或登记设备
	device, err := s.registerDevice(ctx, user.ID, userAgent)
	if err != nil {
		logCtx.WithError(err).Error("Failed to find or create device during login")
		return nil, err
	}

	// 4. 生成 token
	token, err := s.tokens.Issue(user.ID, device.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate JWT token during login")
		return nil, ErrInternalServer
	}

	logCtx.WithField("device_id", device.ID).Info("User logged in successfully")
	user.Password = ""
	return &LoginResult{Token: token, User: user, Device: device}, nil
}

// newDevice 根据 User-Agent 构造属于 userID 的新设备
func newDevice(userID, userAgent string) *domain.Device {
	info := ParseClientInfo(userAgent)
	return &domain.Device{
		ID:              uuid.NewString(),
		DeviceName:      info.DeviceName(),
		Username:        info.Username(),
		UserID:          &userID,
		OperatingSystem: info.OS,
		Browser:         info.Browser,
		DeviceFamily:    info.Platform,
	}
}

// registerDevice 根据 User-Agent 查找或创建用户的设备
func (s *AuthService) registerDevice(ctx context.Context, userID, userAgent string) (*domain.Device, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	device, err := s.deviceRepo.FindOrCreate(storeCtx, newDevice(userID, userAgent))
	if err != nil {
		return nil, mapRepoError(err, nil)
	}
	return device, nil
}

// --- 私有辅助函数 ---

// hashPassword 使用 bcrypt 对密码进行哈希处理
func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to generate hash from password: %w", err)
	}
	return string(bytes), nil
}

// checkPassword 验证提供的密码是否与存储的哈希匹配
func checkPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
