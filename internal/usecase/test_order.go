package usecase

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/wb-order-pipeline/internal/domain"
)

var (
	testCurrencies = []string{"USD", "EUR", "GBP", "RUB"}
	testLocales    = []string{"en", "ru", "de", "fr"}
	testSizes      = []string{"XS", "S", "M", "L", "XL"}
	testBrands     = []string{"Vivienne Sabo", "Nike", "Levi's", "Zara"}
	testServices   = []string{"meest", "cdek", "boxberry"}
)

// GenerateTestOrder — случайный, но структурно полный заказ из 1–4 позиций.
func GenerateTestOrder(r *rand.Rand) domain.Order {
	uid := strings.ReplaceAll(uuid.NewString(), "-", "")
	track := "WBIL" + strings.ToUpper(uid[:10])
	now := time.Now().UTC()

	items := make([]domain.Item, 1+r.IntN(4))
	goods := 0
	for i := range items {
		price := 100 + r.IntN(900)
		sale := r.IntN(50)
		total := price * (100 - sale) / 100
		goods += total
		items[i] = domain.Item{
			ChrtID:      int64(1000000 + r.IntN(9000000)),
			TrackNumber: track,
			Price:       price,
			RID:         uuid.NewString(),
			Name:        "Item " + strconv.Itoa(i+1),
			Sale:        sale,
			Size:        pick(r, testSizes),
			TotalPrice:  total,
			NmID:        int64(100000 + r.IntN(900000)),
			Brand:       pick(r, testBrands),
			Status:      202,
		}
	}
	deliveryCost := 10 + r.IntN(490)

	return domain.Order{
		OrderUID:    uid,
		TrackNumber: track,
		Entry:       "WBIL",
		Delivery: &domain.Delivery{
			Name:    "Test Testov",
			Phone:   "+7" + strconv.Itoa(9000000000+r.IntN(999999999)),
			Zip:     strconv.Itoa(100000 + r.IntN(900000)),
			City:    "Moscow",
			Address: "Ploshad Mira " + strconv.Itoa(1+r.IntN(99)),
			Region:  "Moscow",
			Email:   "test" + strconv.Itoa(r.IntN(10000)) + "@example.com",
		},
		Payment: &domain.Payment{
			Transaction:  uid,
			RequestID:    uuid.NewString(),
			Currency:     pick(r, testCurrencies),
			Provider:     "wbpay",
			Amount:       goods + deliveryCost,
			PaymentDT:    now.Unix(),
			Bank:         "alpha",
			DeliveryCost: deliveryCost,
			GoodsTotal:   goods,
		},
		Items:       items,
		Locale:      pick(r, testLocales),
		CustomerID:  uuid.NewString(),
		DeliverySrv: pick(r, testServices),
		Shardkey:    strconv.Itoa(r.IntN(10)),
		SmID:        1 + r.IntN(99),
		DateCreated: now,
		OofShard:    strconv.Itoa(1 + r.IntN(2)),
	}
}

func pick(r *rand.Rand, from []string) string {
	return from[r.IntN(len(from))]
}
