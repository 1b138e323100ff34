package domain

import "time"

const (
	PaymentCash   = "Efectivo"
	PaymentRemote = "Daviplata"
)

const (
	OrderStatusPending   = "pendiente"
	OrderStatusCompleted = "completada"
	OrderStatusCancelled = "cancelada"
)

const (
	PermDashboard    = "dashboard"
	PermArticles     = "articles"
	PermCashiers     = "cashiers"
	PermReturns      = "returns"
	PermVerifyRemote = "verify_remote"
	PermAIAnalysis   = "ai_analysis"
	PermLogs         = "logs"
)

type Product struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Price             int64     `json:"price"`
	ImageURL          string    `json:"image_url,omitempty"`
	Active            bool      `json:"active"`
	VisibleToCustomer bool      `json:"visible_to_customer"`
	InitialStock      int       `json:"initial_stock"`
	CreatedAt         time.Time `json:"created_at"`
}

// ProductStock is a product plus its derived quantities. None of the derived
// fields are stored.
type ProductStock struct {
	Product
	Sold      int `json:"sold"`
	Returned  int `json:"returned"`
	Reserved  int `json:"reserved"`
	Available int `json:"available"`
}

type ArticleRequest struct {
	Name              string `json:"name"`
	Price             int64  `json:"price"`
	ImageURL          string `json:"image_url"`
	InitialStock      int    `json:"initial_stock"`
	VisibleToCustomer *bool  `json:"visible_to_customer,omitempty"`
}

type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

type Sale struct {
	ID             string     `json:"id"`
	CashierID      string     `json:"cashier_id"`
	CashierName    string     `json:"cashier_name,omitempty"`
	PaymentMethod  string     `json:"payment_method"`
	Subtotal       int64      `json:"subtotal"`
	AmountTendered int64      `json:"amount_tendered"`
	Change         int64      `json:"change"`
	RemoteOrderID  string     `json:"remote_order_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Items          []SaleLine `json:"items"`
}

type SaleLine struct {
	SaleID      string `json:"sale_id,omitempty"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

type SaleRequest struct {
	PaymentMethod  string     `json:"payment_method"`
	Subtotal       int64      `json:"subtotal"`
	AmountTendered int64      `json:"amount_tendered"`
	Items          []LineItem `json:"items"`
}

// LineItem is the shape shared by sale requests and remote order details.
type LineItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

type Return struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name,omitempty"`
	Quantity     int       `json:"quantity"`
	RefundAmount int64     `json:"refund_amount"`
	CashierID    string    `json:"cashier_id"`
	CashierName  string    `json:"cashier_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ReturnRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type RemoteOrder struct {
	ID               string       `json:"id"`
	Code             string       `json:"code"`
	Details          OrderDetails `json:"details"`
	Total            int64        `json:"total"`
	Status           string       `json:"status"`
	CustomerDocument string       `json:"customer_document,omitempty"`
	CustomerPhone    string       `json:"customer_phone,omitempty"`
	SaleID           string       `json:"sale_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
	CancelledAt      *time.Time   `json:"cancelled_at,omitempty"`
	// DetailsUnreadable is set by stores when the persisted details could not
	// be decoded. Details is empty in that case.
	DetailsUnreadable bool `json:"details_unreadable,omitempty"`
}

type RemoteOrderRequest struct {
	Details  []LineItem   `json:"details"`
	Total    int64        `json:"total"`
	Customer CustomerInfo `json:"customer"`
}

type CustomerInfo struct {
	Document string `json:"document,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Actor is the authenticated cashier on whose behalf an operation runs.
type Actor struct {
	ID          string
	Username    string
	Name        string
	Permissions []string
}

func (a Actor) Can(permission string) bool {
	for _, p := range a.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// SystemActor is used for scheduled work.
var SystemActor = Actor{ID: "system", Username: "system", Name: "system"}

type Cashier struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	Permissions  []string  `json:"permissions"`
	CreatedAt    time.Time `json:"created_at"`
}

type CashierRequest struct {
	Username    string   `json:"username"`
	FullName    string   `json:"full_name"`
	Password    string   `json:"password,omitempty"`
	Active      *bool    `json:"active,omitempty"`
	Permissions []string `json:"permissions"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	CashierID   string   `json:"cashier_id"`
	FullName    string   `json:"full_name"`
	Permissions []string `json:"permissions"`
	ExpiresAt   string   `json:"expires_at"`
}

type AuditLog struct {
	ID          string    `json:"id"`
	CashierID   string    `json:"cashier_id,omitempty"`
	CashierName string    `json:"cashier_name,omitempty"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	Detail      string    `json:"detail"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	SenderUser  = "user"
	SenderAI    = "ai"
	SenderAdmin = "admin"
)

type ConversationMessage struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	Sender           string    `json:"sender"`
	Message          string    `json:"message"`
	CustomerDocument string    `json:"customer_document,omitempty"`
	CustomerPhone    string    `json:"customer_phone,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type Conversation struct {
	SessionID        string                `json:"session_id"`
	CustomerDocument string                `json:"customer_document,omitempty"`
	CustomerPhone    string                `json:"customer_phone,omitempty"`
	LastMessageAt    time.Time             `json:"last_message_at"`
	Messages         []ConversationMessage `json:"messages"`
}

type ChatRequest struct {
	SessionID string       `json:"session_id"`
	Message   string       `json:"message"`
	Customer  CustomerInfo `json:"customer"`
}

type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

type AdminMessageRequest struct {
	Message string `json:"message"`
}

type CashierTotal struct {
	Name  string `json:"name"`
	Total int64  `json:"total"`
}

type CashierPace struct {
	Name       string  `json:"name"`
	AvgSeconds float64 `json:"avg_seconds"`
}

type Dashboard struct {
	TotalRevenue          int64          `json:"total_revenue"`
	SalesCount            int            `json:"sales_count"`
	TotalCash             int64          `json:"total_cash"`
	TotalRemote           int64          `json:"total_remote"`
	TotalReturns          int64          `json:"total_returns"`
	SalesByCashier        []CashierTotal `json:"sales_by_cashier"`
	AvgVerificationMins   *float64       `json:"avg_verification_minutes"`
	SalePaceByCashier     []CashierPace  `json:"sale_pace_by_cashier"`
	CompletedRemoteOrders int            `json:"completed_remote_orders"`
	PendingRemoteOrders   int            `json:"pending_remote_orders"`
}

type ArticleSales struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	UnitsSold int    `json:"units_sold"`
	Revenue   int64  `json:"revenue"`
}

type AnalysisRequest struct {
	Question string `json:"question"`
}

type AnalysisResponse struct {
	Analysis string `json:"analysis"`
}

// AnalysisInput is everything handed to the assistant for a dashboard review.
type AnalysisInput struct {
	Question    string         `json:"question,omitempty"`
	Dashboard   Dashboard      `json:"dashboard"`
	Articles    []ArticleSales `json:"articles"`
	RecentSales []Sale         `json:"recent_sales"`
	Returns     []Return       `json:"returns"`
}

type FraudCheckInput struct {
	Total         int64        `json:"total"`
	PaymentMethod string       `json:"payment_method"`
	Items         []LineItem   `json:"items"`
	Reference     string       `json:"reference,omitempty"`
	Customer      CustomerInfo `json:"customer"`
}

type FraudVerdict struct {
	Safe   bool   `json:"is_safe"`
	Reason string `json:"reason"`
}

type CashierWarningInput struct {
	PendingOrders       int      `json:"pending_orders"`
	CompletedCustomers  int      `json:"completed_customers"`
	AvgVerificationMins *float64 `json:"avg_verification_minutes,omitempty"`
}

type CashierWarning struct {
	Active  bool   `json:"active"`
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
}

const (
	PresenceBrowsing  = "browsing"
	PresencePaying    = "paying"
	PresenceCompleted = "completed"
	PresenceInactive  = "inactive"
)

type PresenceRequest struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

type PresenceSnapshot struct {
	Browsing  int `json:"browsing"`
	Paying    int `json:"paying"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// ChatContext is what the customer assistant sees for one question.
type ChatContext struct {
	Question  string                `json:"question"`
	History   []ConversationMessage `json:"history"`
	Customer  CustomerInfo          `json:"customer"`
	Catalogue []ProductStock        `json:"catalogue"`
	Orders    []RemoteOrder         `json:"orders"`
}
