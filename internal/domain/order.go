package domain

import "time"

// Точность хранения временных меток в PostgreSQL.
const timestampPrecision = time.Microsecond

// Order — доменная сущность заказа: заголовок, доставка, оплата и позиции.
type Order struct {
	OrderUID     string    `json:"order_uid" validate:"required"`
	TrackNumber  string    `json:"track_number"`
	Entry        string    `json:"entry"`
	Delivery     *Delivery `json:"delivery" validate:"required"`
	Payment      *Payment  `json:"payment" validate:"required"`
	Items        []Item    `json:"items" validate:"dive"`
	Locale       string    `json:"locale"`
	InternalSign string    `json:"internal_signature"`
	CustomerID   string    `json:"customer_id"`
	DeliverySrv  string    `json:"delivery_service"`
	Shardkey     string    `json:"shardkey"`
	SmID         int       `json:"sm_id" validate:"gte=-2147483648,lte=2147483647"`
	DateCreated  time.Time `json:"date_created"`
	OofShard     string    `json:"oof_shard"`
}

// Delivery — получатель и адрес доставки, принадлежит ровно одному заказу.
type Delivery struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Zip     string `json:"zip"`
	City    string `json:"city"`
	Address string `json:"address"`
	Region  string `json:"region"`
	Email   string `json:"email" validate:"omitempty,email"`
}

// Payment — сведения об оплате заказа.
// Суммы хранятся в колонках integer, отсюда верхняя граница в тегах.
type Payment struct {
	Transaction  string `json:"transaction" validate:"required"`
	RequestID    string `json:"request_id"`
	Currency     string `json:"currency" validate:"required"`
	Provider     string `json:"provider"`
	Amount       int    `json:"amount" validate:"gte=0,lte=2147483647"`
	PaymentDT    int64  `json:"payment_dt"`
	Bank         string `json:"bank"`
	DeliveryCost int    `json:"delivery_cost" validate:"gte=0,lte=2147483647"`
	GoodsTotal   int    `json:"goods_total" validate:"gte=0,lte=2147483647"`
	CustomFee    int    `json:"custom_fee" validate:"gte=0,lte=2147483647"`
}

// Item — позиция заказа.
type Item struct {
	ChrtID      int64  `json:"chrt_id" validate:"required"`
	TrackNumber string `json:"track_number"`
	Price       int    `json:"price" validate:"gte=0,lte=2147483647"`
	RID         string `json:"rid"`
	Name        string `json:"name"`
	Sale        int    `json:"sale" validate:"gte=0,lte=100"`
	Size        string `json:"size"`
	TotalPrice  int    `json:"total_price" validate:"gte=0,lte=2147483647"`
	NmID        int64  `json:"nm_id"`
	Brand       string `json:"brand"`
	Status      int    `json:"status" validate:"gte=-2147483648,lte=2147483647"`
}

// Clone — глубокая копия заказа: вложенные структуры и позиции не разделяются.
func (o Order) Clone() Order {
	c := o
	if o.Delivery != nil {
		d := *o.Delivery
		c.Delivery = &d
	}
	if o.Payment != nil {
		p := *o.Payment
		c.Payment = &p
	}
	if o.Items != nil {
		c.Items = make([]Item, len(o.Items))
		copy(c.Items, o.Items)
	}
	return c
}

// Normalize приводит заказ к каноничному виду, в котором он хранится:
// пустой список позиций вместо nil, дата создания в UTC с точностью хранилища.
func Normalize(o Order) Order {
	if o.Items == nil {
		o.Items = []Item{}
	}
	o.DateCreated = o.DateCreated.UTC().Truncate(timestampPrecision)
	return o
}
