//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/orderflow/internal/order/application"
	"github.com/dmehra2102/orderflow/internal/order/domain"
	orderhttp "github.com/dmehra2102/orderflow/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/orderflow/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/orderflow/internal/order/infrastructure/postgres"
	paymentapp "github.com/dmehra2102/orderflow/internal/payment/application"
	paymentdomain "github.com/dmehra2102/orderflow/internal/payment/domain"
	paymentpg "github.com/dmehra2102/orderflow/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/orderflow/pkg/outbox"
)

var (
	env  *Env
	pool *pgxpool.Pool
	log  = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	env, err = Setup(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "integration setup:", err)
		os.Exit(1)
	}
	pool, err = pgxpool.New(ctx, env.PGURL)
	if err == nil {
		err = orderpg.Migrate(ctx, pool)
	}
	if err == nil {
		err = paymentpg.Migrate(ctx, pool)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "integration db:", err)
		env.Teardown(ctx)
		os.Exit(1)
	}

	code := m.Run()
	pool.Close()
	env.Teardown(ctx)
	os.Exit(code)
}

func newOrderService() *application.Service {
	numbers := domain.NewNumberGenerator(orderpg.NewSequence(log, pool), nil)
	return application.NewService(log, orderpg.NewRepository(log, pool), numbers, paymentapp.NewStatusPolicy())
}

func TestSequenceConcurrentCallersGetContiguousNumbers(t *testing.T) {
	const workers = 25
	seq := orderpg.NewSequence(log, pool)
	at := time.Date(2031, time.May, 10, 12, 0, 0, 0, time.UTC)

	var (
		mu  sync.Mutex
		got []int64
		wg  sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := seq.NextOrderNumber(context.Background(), at)
			assert.NoError(t, err)
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, got, workers)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i := range got {
		assert.Equal(t, got[0]+int64(i), got[i], "numbers must be distinct and gap free")
	}

	next, err := seq.NextOrderNumber(context.Background(), at.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, got[workers-1]+1, next)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	svc := newOrderService()
	srv := httptest.NewServer(orderhttp.NewHandler(log, svc, domain.NewRedirectURLs("https://pay.test")).Routes())
	defer srv.Close()

	body := `{"sum":300,"contractorType":1,"items":[{"productId":7,"price":100,"quantity":3}]}`
	resp, err := http.Post(srv.URL+"/api/orders", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	var created struct {
		UniqueOrderNumber string `json:"uniqueOrderNumber"`
		RedirectURL       string `json:"redirectUrl"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "https://pay.test/pay/"+created.UniqueOrderNumber, created.RedirectURL)

	completion := func() application.CheckOrderCompletionResult {
		resp, err := http.Get(srv.URL + "/api/orders/" + created.UniqueOrderNumber + "/complete")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out application.CheckOrderCompletionResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}
	assert.False(t, completion().IsPaid)

	settler := paymentapp.NewService(log, orderpg.NewRepository(log, pool), paymentpg.NewRepository(log, pool))
	ev := paymentdomain.PaymentProcessed{UniqueOrderNumber: created.UniqueOrderNumber, AmountCents: 300}
	status, err := settler.Settle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusApplied, status)

	var paidEvents int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT count(*) FROM outbox WHERE aggregate_id = $1 AND type = $2`,
		created.UniqueOrderNumber, domain.EventOrderPaid).Scan(&paidEvents))
	assert.Equal(t, 1, paidEvents)

	got := completion()
	assert.True(t, got.IsPaid)
	assert.Equal(t, application.MessagePaid, got.Message)

	status, err = settler.Settle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusAlreadyPaid, status)

	resp, err = http.Get(srv.URL + "/api/orders?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	var recent []application.OrderListItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recent))
	require.Len(t, recent, 1)
	assert.Equal(t, created.UniqueOrderNumber, recent[0].ID)
	assert.Equal(t, []application.OrderItemDTO{{ProductID: 7, Price: 100, Quantity: 3}}, recent[0].Items)
}

func TestOutboxRelayPublishesOrderCreated(t *testing.T) {
	const topic = "order.events.it"
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := newOrderService().CreateOrder(ctx, application.CreateOrderCommand{
		Sum:            50,
		ContractorType: 2,
		Items:          []application.CreateOrderItem{{ProductID: 1, Price: 50, Quantity: 1}},
	})
	require.NoError(t, err)

	writer := orderkafka.NewWriter(log, env.KAddr)
	defer writer.Close()
	relay := outbox.NewRelay(log, orderpg.NewOutboxStore(log, pool), outbox.NewDispatcher(log, writer, topic), "relay-it")

	require.Eventually(t, func() bool {
		n, err := relay.Drain(ctx)
		return err == nil && n > 0
	}, 30*time.Second, 500*time.Millisecond)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     env.KAddr,
		Topic:       topic,
		GroupID:     "it-" + res.UniqueOrderNumber,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		require.NoError(t, err)
		if string(msg.Key) != res.UniqueOrderNumber {
			continue
		}
		var ev domain.OrderEvent
		require.NoError(t, json.Unmarshal(msg.Value, &ev))
		assert.Equal(t, int64(50), ev.Sum)
		assert.Equal(t, 2, ev.ContractorType)
		assert.False(t, ev.IsPaid)
		assert.Contains(t, msg.Headers, kafka.Header{Key: "event_type", Value: []byte(domain.EventOrderCreated)})
		return
	}
}
