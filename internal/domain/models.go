// Package domain defines the persistence models for users, blood test
// analyses, their follow-up conversations, and credit purchases. These types
// are mapped with GORM and form the core data layer of the service.
package domain

import "time"

// Analysis statuses. Only completed records are ever persisted.
const (
	StatusCompleted = "completed"
)

// Message roles within a conversation thread.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Payment statuses as reported by the gateway. PaymentPending is the local
// initial state before the gateway reports anything.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

// User is an account holder. Credits is the prepaid analysis balance and is
// only ever mutated through conditional updates in the repo layer.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Email: unique, stored lower-cased.
//   - PasswordHash: bcrypt hash, never serialized.
//   - Credits: non-negative balance (DB check constraint).
//   - IsActive: inactive users cannot authenticate.
type User struct {
	ID           string    `json:"id"        gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"     gorm:"type:varchar(320);not null;uniqueIndex:ux_users_email"`
	FullName     string    `json:"full_name" gorm:"type:varchar(255);not null"`
	PasswordHash string    `json:"-"         gorm:"type:varchar(100);not null"`
	Credits      int       `json:"credits"   gorm:"not null;default:0;check:chk_users_credits,credits >= 0"`
	IsActive     bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// BloodTest is the persisted result of one successful analysis run: the
// uploaded file's extracted text, the model's interpretation, and the
// rendered PDF report. Records are immutable after creation.
type BloodTest struct {
	ID            string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID        string    `json:"user_id"    gorm:"type:char(36);not null;index:idx_user_tests,priority:1"`
	Filename      string    `json:"filename"   gorm:"type:varchar(255);not null"`
	ExtractedText string    `json:"-"          gorm:"type:text;not null"`
	Analysis      string    `json:"analysis"   gorm:"type:text;not null"`
	ReportPDF     []byte    `json:"-"          gorm:"not null"`
	Status        string    `json:"status"     gorm:"type:varchar(16);not null;default:'completed'"`
	CreatedAt     time.Time `json:"created_at" gorm:"index:idx_user_tests,priority:2"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for BloodTest.
func (BloodTest) TableName() string { return "blood_tests" }

// ChatSession is the single conversation thread attached to a blood test.
// It is created lazily on the first follow-up question.
type ChatSession struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	TestID    string    `json:"test_id"    gorm:"type:char(36);not null;uniqueIndex:ux_chat_sessions_test"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Test BloodTest `json:"-" gorm:"foreignKey:TestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// ChatMessage is one entry of a thread. Seq orders messages within a session
// since a question and its answer are written in the same transaction.
type ChatMessage struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string    `json:"session_id" gorm:"type:char(36);not null;uniqueIndex:ux_chat_messages_seq,priority:1"`
	Seq       int       `json:"seq"        gorm:"not null;uniqueIndex:ux_chat_messages_seq,priority:2"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:chk_chat_messages_role,role IN ('user','assistant')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"timestamp"`

	Session ChatSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// PaymentTransaction tracks one hosted checkout session. CreditsAdded is the
// single guard that makes crediting the owning user happen at most once.
//
// Fields:
//   - SessionID: gateway checkout session id (unique).
//   - UserID: purchaser, captured from the authenticated checkout request.
//   - Credits: requested quantity.
//   - AmountCents / Currency: computed price at creation time.
//   - Status / PaymentStatus: last values reported by the gateway.
//   - CreditsAdded: set exactly once, in the same transaction as the increment.
//   - WebhookProcessed: a verified webhook for this session was handled.
type PaymentTransaction struct {
	ID               string    `json:"id"              gorm:"type:char(36);primaryKey"`
	SessionID        string    `json:"session_id"      gorm:"type:varchar(255);not null;uniqueIndex:ux_payment_session"`
	UserID           string    `json:"user_id"         gorm:"type:char(36);not null;index"`
	Credits          int       `json:"credits"         gorm:"not null;check:chk_payment_credits,credits > 0"`
	AmountCents      int64     `json:"amount_cents"    gorm:"not null"`
	Currency         string    `json:"currency"        gorm:"type:varchar(3);not null"`
	Status           string    `json:"status"          gorm:"type:varchar(32);not null;default:'open'"`
	PaymentStatus    string    `json:"payment_status"  gorm:"type:varchar(32);not null;default:'pending'"`
	CreditsAdded     bool      `json:"credits_added"   gorm:"not null;default:false"`
	WebhookProcessed bool      `json:"webhook_processed" gorm:"not null;default:false"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for PaymentTransaction.
func (PaymentTransaction) TableName() string { return "payment_transactions" }
