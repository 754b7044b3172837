//go:build integration

package test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/winfrey-Git/customer-portal/internal/domain"
	"github.com/winfrey-Git/customer-portal/internal/erp"
	"github.com/winfrey-Git/customer-portal/internal/gateway"
	"github.com/winfrey-Git/customer-portal/internal/messaging"
	"github.com/winfrey-Git/customer-portal/internal/registrations"
	"github.com/winfrey-Git/customer-portal/internal/soap"
	"github.com/winfrey-Git/customer-portal/internal/worker"
)

func TestRegistrationRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(ctx, pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := registrations.NewRepository(db)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, no := range []string{"CUST00001", "CUST00002", "CUST00003"} {
		reg := &domain.CustomerRegistration{
			EventID:      uuid.NewString(),
			CustomerNo:   no,
			Name:         "Customer " + no,
			Email:        strings.ToLower(no) + "@example.com",
			City:         "Leeds",
			CountryCode:  "GB",
			TemplateCode: "CUST-DOM",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		inserted, err := repo.Save(ctx, reg)
		if err != nil {
			t.Fatalf("failed to save registration %s: %v", no, err)
		}
		if !inserted {
			t.Fatalf("expected registration %s to be inserted", no)
		}

		inserted, err = repo.Save(ctx, reg)
		if err != nil {
			t.Fatalf("failed to replay registration %s: %v", no, err)
		}
		if inserted {
			t.Fatalf("expected replay of %s to be a no-op", no)
		}
	}

	got, err := repo.GetByCustomerNo(ctx, "CUST00002")
	if err != nil {
		t.Fatalf("failed to fetch registration: %v", err)
	}
	if got == nil {
		t.Fatal("registration not found in database")
	}
	if got.Email != "cust00002@example.com" {
		t.Fatalf("unexpected email: %s", got.Email)
	}
	if got.RecordedAt.IsZero() {
		t.Fatal("expected recorded_at to be set")
	}

	missing, err := repo.GetByCustomerNo(ctx, "CUST99999")
	if err != nil {
		t.Fatalf("unexpected error for missing customer: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing customer, got %+v", missing)
	}

	list, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("failed to list registrations: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 registrations, got %d", len(list))
	}
	if list[0].CustomerNo != "CUST00003" || list[1].CustomerNo != "CUST00002" {
		t.Fatalf("expected newest first, got %s, %s", list[0].CustomerNo, list[1].CustomerNo)
	}
}

func TestKafkaConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	if len(brokers) == 0 {
		t.Fatal("expected at least one broker")
	}

	t.Logf("kafka brokers: %v", brokers)
}

// TestCustomerRegistrationFlow creates a customer through the gateway against
// a stubbed SOAP service, then lets the worker consume the published event.
func TestCustomerRegistrationFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := OpenDB(ctx, pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()
	repo := registrations.NewRepository(db)

	soapServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		_, _ = io.WriteString(w, `<Soap:Envelope xmlns:Soap="http://schemas.xmlsoap.org/soap/envelope/"><Soap:Body>`+
			`<CreateCustomer_Result xmlns="urn:microsoft-dynamics-schemas/codeunit/CustomerService">`+
			`<return_value>CUST00123</return_value></CreateCustomer_Result></Soap:Body></Soap:Envelope>`)
	}))
	defer soapServer.Close()

	creds, err := erp.NewCredentials("svc-portal", "s3cret")
	if err != nil {
		t.Fatalf("failed to build credentials: %v", err)
	}
	endpoints, err := erp.NewEndpointTable(soapServer.URL+"/ODataV4", "CRONUS", erp.DefaultCatalogue, nil)
	if err != nil {
		t.Fatalf("failed to build endpoints: %v", err)
	}

	topic := "customer.created." + uuid.NewString()[:8]
	if err := createTopic(ctx, brokers[0], topic); err != nil {
		t.Fatalf("failed to create topic: %v", err)
	}

	producer := messaging.NewProducer(brokers, topic)
	defer func() { _ = producer.Close() }()

	dispatcher := gateway.NewDispatcher(endpoints, creds, soapServer.Client(), logger)
	handler := gateway.NewHandler(
		dispatcher,
		gateway.NewService(dispatcher, 10, logger),
		soap.NewClient(soapServer.URL, creds, soapServer.Client(), logger),
		logger,
		gateway.WithEventPublisher(producer),
		gateway.WithRegistrations(repo),
	)
	mux := http.NewServeMux()
	handler.Register(mux)

	body := `{"name":"Acme & Co","address":"1 Road","city":"Leeds","postalCode":"LS1 1AA","countryCode":"GB","phone":"0113","email":"ap@acme.example","templateCode":"CUST-DOM"}`
	req := httptest.NewRequest(http.MethodPost, "/api/customers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	consumer := messaging.NewConsumer(brokers, topic, "registration-worker-test", messaging.WithStartOffset(kafka.FirstOffset))
	defer func() { _ = consumer.Close() }()

	consumeCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	registrationHandler := worker.NewRegistrationHandler(repo, logger)
	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- consumer.Consume(consumeCtx, registrationHandler.Handle)
	}()

	var reg *domain.CustomerRegistration
	deadline := time.Now().Add(90 * time.Second)
	for time.Now().Before(deadline) {
		reg, err = repo.GetByCustomerNo(ctx, "CUST00123")
		if err != nil {
			t.Fatalf("failed to query registration: %v", err)
		}
		if reg != nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if reg == nil {
		t.Fatal("registration was not recorded by the worker")
	}
	if reg.Name != "Acme & Co" || reg.TemplateCode != "CUST-DOM" {
		t.Fatalf("unexpected registration: %+v", reg)
	}

	stopConsumer()
	if err := <-consumeErr; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("consumer failed: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/registrations?limit=5", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var listed []domain.CustomerRegistration
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("failed to decode registrations: %v", err)
	}
	if len(listed) != 1 || listed[0].CustomerNo != "CUST00123" {
		t.Fatalf("unexpected registrations: %+v", listed)
	}
}

func createTopic(ctx context.Context, broker, topic string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	return conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
}
