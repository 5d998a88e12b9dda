package domain

import (
	"time"
)

// UserModel is the GORM model for the users table.
type UserModel struct {
	Username           string    `gorm:"type:varchar(50);primaryKey"`
	PasswordHash       string    `gorm:"type:varchar(255);not null"`
	SecurityQuestion   string    `gorm:"type:varchar(255);not null"`
	SecurityAnswerHash string    `gorm:"type:varchar(255);not null"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string { return "users" }

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		Username:           m.Username,
		PasswordHash:       m.PasswordHash,
		SecurityQuestion:   m.SecurityQuestion,
		SecurityAnswerHash: m.SecurityAnswerHash,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	return &UserModel{
		Username:           u.Username,
		PasswordHash:       u.PasswordHash,
		SecurityQuestion:   u.SecurityQuestion,
		SecurityAnswerHash: u.SecurityAnswerHash,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

// MessageModel is the GORM model for the messages table. ID is a ULID and
// doubles as the ordering key.
type MessageModel struct {
	ID        string    `gorm:"type:varchar(26);primaryKey"`
	FromUser  string    `gorm:"column:from_user;type:varchar(50);not null;index:idx_messages_pair,priority:1"`
	ToUser    string    `gorm:"column:to_user;type:varchar(50);not null;index:idx_messages_pair,priority:2;index:idx_messages_pending,priority:1"`
	Text      string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"not null"`
	Delivered bool      `gorm:"not null;default:false;index:idx_messages_pending,priority:2"`
}

func (MessageModel) TableName() string { return "messages" }

func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:        m.ID,
		FromUser:  m.FromUser,
		ToUser:    m.ToUser,
		Text:      m.Text,
		Timestamp: m.Timestamp,
		Delivered: m.Delivered,
	}
}

// ChatRequestModel is the GORM model for the chat_requests table.
// PairKey holds the normalised unordered pair so both directions share
// one index.
type ChatRequestModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	FromUser  string    `gorm:"column:from_user;type:varchar(50);not null;index"`
	ToUser    string    `gorm:"column:to_user;type:varchar(50);not null;index"`
	PairKey   string    `gorm:"column:pair_key;type:varchar(128);not null;index"`
	Status    string    `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (ChatRequestModel) TableName() string { return "chat_requests" }

func (m *ChatRequestModel) ToDomain() *ChatRequest {
	return &ChatRequest{
		ID:        m.ID,
		FromUser:  m.FromUser,
		ToUser:    m.ToUser,
		Status:    RequestStatus(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
