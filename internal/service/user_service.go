package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/habitsprout/internal/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound 在用户不存在时返回
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists 在用户名或邮箱已被占用时返回
	ErrUserExists = errors.New("username or email already registered")
	// ErrUserInvalid 当注册信息不完整时返回
	ErrUserInvalid = errors.New("invalid user input")
	// ErrInvalidCredentials 在用户名或密码错误时返回
	ErrInvalidCredentials = errors.New("incorrect username or password")
)

// UserService 负责用户注册、登录校验与查询
type UserService struct {
	db *gorm.DB
}

// UserInput 定义注册时提交的字段
type UserInput struct {
	Username string
	Email    string
	Password string
}

// NewUserService 构造 UserService
func NewUserService(gdb *gorm.DB) *UserService {
	return &UserService{db: gdb}
}

// Create 注册新用户，密码以 bcrypt 哈希存储，初始等级为 1
func (s *UserService) Create(ctx context.Context, input UserInput) (*db.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrUserInvalid)
	}

	address, err := mail.ParseAddress(strings.TrimSpace(input.Email))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrUserInvalid)
	}
	email := strings.ToLower(address.Address)

	if input.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrUserInvalid)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&db.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := db.User{
		Username: username,
		Email:    email,
		Password: string(hashed),
		Level:    1,
		XP:       0,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// Authenticate 校验用户名（或邮箱）与密码
func (s *UserService) Authenticate(ctx context.Context, login, password string) (*db.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var user db.User
	if err := s.db.WithContext(ctx).
		Where("username = ? OR email = ?", login, strings.ToLower(login)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// Get 根据 ID 获取用户
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*db.User, error) {
	var user db.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}
