package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/easyorders"
	"github.com/jafarshop/easyorders/internal/repository"
	"github.com/jafarshop/easyorders/pkg/errors"
)

// memDB is an in-memory stand-in for the Postgres schema. Rows are stored by
// value so callers never share state with the fake.
type memDB struct {
	now          time.Time
	stores       map[uuid.UUID]domain.Store
	tempOrders   map[uuid.UUID]domain.TempOrder
	tasks        []domain.Task
	logs         []domain.WebhookLog
	stocks       map[uuid.UUID]domain.Stock
	customers    map[uuid.UUID]domain.Customer
	addresses    []domain.CustomerAddress
	orders       []domain.Order
	details      []domain.OrderDetail
	transactions []domain.Transaction
	unlocked     map[uuid.UUID]time.Time

	secretCompares int
}

func newMemDB(now time.Time) *memDB {
	return &memDB{
		now:        now,
		stores:     map[uuid.UUID]domain.Store{},
		tempOrders: map[uuid.UUID]domain.TempOrder{},
		stocks:     map[uuid.UUID]domain.Stock{},
		customers:  map[uuid.UUID]domain.Customer{},
		unlocked:   map[uuid.UUID]time.Time{},
	}
}

func (db *memDB) snapshot() *memDB {
	cp := *db
	cp.stores = copyMap(db.stores)
	cp.tempOrders = copyMap(db.tempOrders)
	cp.stocks = copyMap(db.stocks)
	cp.customers = copyMap(db.customers)
	cp.unlocked = copyMap(db.unlocked)
	cp.tasks = append([]domain.Task(nil), db.tasks...)
	cp.logs = append([]domain.WebhookLog(nil), db.logs...)
	cp.addresses = append([]domain.CustomerAddress(nil), db.addresses...)
	cp.orders = append([]domain.Order(nil), db.orders...)
	cp.details = append([]domain.OrderDetail(nil), db.details...)
	cp.transactions = append([]domain.Transaction(nil), db.transactions...)
	return &cp
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (db *memDB) repos() *repository.Repositories {
	return &repository.Repositories{
		Store:      &memStores{db},
		TempOrder:  &memTempOrders{db},
		WebhookLog: &memWebhookLogs{db},
		Task:       &memTasks{db},
		Catalog:    &memCatalog{db},
		Customer:   &memCustomers{db},
		Order:      &memOrders{db},
	}
}

func (db *memDB) tasksOf(kind domain.TaskKind) []domain.Task {
	var out []domain.Task
	for _, t := range db.tasks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

func (db *memDB) tempOrder(id uuid.UUID) domain.TempOrder {
	return db.tempOrders[id]
}

func (db *memDB) addStore(secret string, apiKey *string) domain.Store {
	hash, _ := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	store := domain.Store{
		ID:                  uuid.New(),
		Name:                "Test Store",
		Status:              domain.StoreStatusActive,
		APIKey:              apiKey,
		WebhookSecretHash:   string(hash),
		WebhookSecretPrefix: domain.WebhookSecretPrefix(secret),
	}
	db.stores[store.ID] = store
	return store
}

func (db *memDB) addStock(sku string, shopID uuid.UUID, qty int, price string) domain.Stock {
	stock := domain.Stock{
		ID:            uuid.New(),
		ProductID:     uuid.New(),
		ShopID:        &shopID,
		SKU:           sku,
		Quantity:      qty,
		TotalPrice:    dec(price),
		ProductActive: true,
		ProductStatus: domain.ProductStatusPublished,
	}
	db.stocks[stock.ID] = stock
	return stock
}

func (db *memDB) addTempOrder(order domain.TempOrder) domain.TempOrder {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = db.now
	}
	db.tempOrders[order.ID] = order
	return order
}

// memTx commits by keeping the working state and rolls back by restoring a snapshot
type memTx struct {
	db *memDB
}

func (m *memTx) WithinTx(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	saved := m.db.snapshot()
	if err := fn(m.db.repos()); err != nil {
		*m.db = *saved
		return err
	}
	return nil
}

type memStores struct{ db *memDB }

func (r *memStores) GetByID(ctx context.Context, id uuid.UUID) (*domain.Store, error) {
	store, ok := r.db.stores[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "store", ID: id.String()}
	}
	return &store, nil
}

func (r *memStores) GetByWebhookSecret(ctx context.Context, secret string) (*domain.Store, error) {
	if secret == "" {
		return nil, &errors.ErrUnauthorized{Message: "missing webhook secret"}
	}
	prefix := domain.WebhookSecretPrefix(secret)
	for _, store := range r.db.stores {
		if !store.IsActive() || (store.WebhookSecretPrefix != "" && store.WebhookSecretPrefix != prefix) {
			continue
		}
		r.db.secretCompares++
		if bcrypt.CompareHashAndPassword([]byte(store.WebhookSecretHash), []byte(secret)) == nil {
			s := store
			return &s, nil
		}
	}
	return nil, &errors.ErrUnauthorized{Message: "invalid webhook secret"}
}

func (r *memStores) List(ctx context.Context, filter repository.StoreFilter) ([]*domain.Store, int, error) {
	var out []*domain.Store
	for _, store := range r.db.stores {
		if filter.Status != "" && store.Status != filter.Status {
			continue
		}
		s := store
		out = append(out, &s)
	}
	return out, len(out), nil
}

func (r *memStores) Create(ctx context.Context, store *domain.Store) error {
	store.ID = uuid.New()
	store.CreatedAt = r.db.now
	store.UpdatedAt = r.db.now
	r.db.stores[store.ID] = *store
	return nil
}

func (r *memStores) Update(ctx context.Context, store *domain.Store) error {
	if _, ok := r.db.stores[store.ID]; !ok {
		return &errors.ErrNotFound{Resource: "store", ID: store.ID.String()}
	}
	r.db.stores[store.ID] = *store
	return nil
}

func (r *memStores) UpdateWebhookSecret(ctx context.Context, id uuid.UUID, hash, prefix string) error {
	store, ok := r.db.stores[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "store", ID: id.String()}
	}
	store.WebhookSecretHash = hash
	store.WebhookSecretPrefix = prefix
	r.db.stores[id] = store
	return nil
}

type memTempOrders struct{ db *memDB }

func (r *memTempOrders) GetByID(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error) {
	order, ok := r.db.tempOrders[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "temp order", ID: id.String()}
	}
	return &order, nil
}

func (r *memTempOrders) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error) {
	return r.GetByID(ctx, id)
}

func (r *memTempOrders) FindByExternalID(ctx context.Context, storeID uuid.UUID, externalOrderID string) (*domain.TempOrder, error) {
	for _, order := range r.db.tempOrders {
		if order.StoreID == storeID && order.ExternalOrderID == externalOrderID {
			o := order
			return &o, nil
		}
	}
	return nil, &errors.ErrNotFound{Resource: "temp order", ID: externalOrderID}
}

func (r *memTempOrders) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.TempOrder, error) {
	var out []*domain.TempOrder
	for _, id := range ids {
		if order, ok := r.db.tempOrders[id]; ok {
			o := order
			out = append(out, &o)
		}
	}
	return out, nil
}

func (r *memTempOrders) List(ctx context.Context, filter repository.TempOrderFilter) ([]*domain.TempOrder, int, error) {
	var out []*domain.TempOrder
	for _, order := range r.db.tempOrders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(order.CustomerName, filter.Search) {
			continue
		}
		o := order
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (r *memTempOrders) Create(ctx context.Context, order *domain.TempOrder) error {
	if _, err := r.FindByExternalID(ctx, order.StoreID, order.ExternalOrderID); err == nil {
		return &errors.ErrDuplicate{Resource: "temp order", Constraint: "uq_easyorders_temp_orders_store_external"}
	}
	order.ID = uuid.New()
	order.CreatedAt = r.db.now
	order.UpdatedAt = r.db.now
	r.db.tempOrders[order.ID] = *order
	return nil
}

func (r *memTempOrders) Update(ctx context.Context, order *domain.TempOrder) error {
	if _, ok := r.db.tempOrders[order.ID]; !ok {
		return &errors.ErrNotFound{Resource: "temp order", ID: order.ID.String()}
	}
	order.UpdatedAt = r.db.now
	r.db.tempOrders[order.ID] = *order
	return nil
}

type memWebhookLogs struct{ db *memDB }

func (r *memWebhookLogs) Create(ctx context.Context, log *domain.WebhookLog) error {
	log.ID = uuid.New()
	log.CreatedAt = r.db.now
	r.db.logs = append(r.db.logs, *log)
	return nil
}

type memTasks struct{ db *memDB }

func (r *memTasks) Enqueue(ctx context.Context, task *domain.Task) error {
	task.ID = uuid.New()
	task.CreatedAt = r.db.now
	r.db.tasks = append(r.db.tasks, *task)
	return nil
}

func (r *memTasks) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.Task, error) {
	var out []*domain.Task
	for i := range r.db.tasks {
		t := &r.db.tasks[i]
		if t.Status != domain.TaskStatusQueued || t.RunAt.After(now) || len(out) >= limit {
			continue
		}
		until := now.Add(lease)
		t.Status = domain.TaskStatusRunning
		t.Attempts++
		t.LockedUntil = &until
		claimed := *t
		out = append(out, &claimed)
	}
	return out, nil
}

func (r *memTasks) set(id uuid.UUID, fn func(t *domain.Task)) error {
	for i := range r.db.tasks {
		if r.db.tasks[i].ID == id {
			fn(&r.db.tasks[i])
			return nil
		}
	}
	return &errors.ErrNotFound{Resource: "task", ID: id.String()}
}

func (r *memTasks) Complete(ctx context.Context, id uuid.UUID) error {
	return r.set(id, func(t *domain.Task) { t.Status = domain.TaskStatusDone })
}

func (r *memTasks) Retry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	return r.set(id, func(t *domain.Task) {
		t.Status = domain.TaskStatusQueued
		t.RunAt = runAt
		t.LastError = &lastError
	})
}

func (r *memTasks) Fail(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.set(id, func(t *domain.Task) {
		t.Status = domain.TaskStatusDead
		t.LastError = &lastError
	})
}

type memCatalog struct{ db *memDB }

func (r *memCatalog) FindStockBySKU(ctx context.Context, sku string, preferredShopID *uuid.UUID) (*domain.Stock, error) {
	var match *domain.Stock
	for _, stock := range r.db.stocks {
		if stock.SKU != sku {
			continue
		}
		s := stock
		if match == nil || (preferredShopID != nil && s.ShopID != nil && *s.ShopID == *preferredShopID) {
			match = &s
		}
	}
	if match == nil {
		return nil, &errors.ErrNotFound{Resource: "stock", ID: sku}
	}
	return match, nil
}

func (r *memCatalog) GetStocksByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Stock, error) {
	out := make(map[uuid.UUID]*domain.Stock, len(ids))
	for _, id := range ids {
		if stock, ok := r.db.stocks[id]; ok {
			s := stock
			out[id] = &s
		}
	}
	return out, nil
}

func (r *memCatalog) DecrementStock(ctx context.Context, stockID uuid.UUID, quantity int) (bool, error) {
	stock, ok := r.db.stocks[stockID]
	if !ok || stock.Quantity < quantity {
		return false, nil
	}
	stock.Quantity -= quantity
	r.db.stocks[stockID] = stock
	return true, nil
}

type memCustomers struct{ db *memDB }

func (r *memCustomers) FindByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	for _, c := range r.db.customers {
		if c.Phone == phone {
			customer := c
			return &customer, nil
		}
	}
	return nil, &errors.ErrNotFound{Resource: "customer", ID: phone}
}

func (r *memCustomers) Create(ctx context.Context, customer *domain.Customer) error {
	customer.ID = uuid.New()
	customer.CreatedAt = r.db.now
	r.db.customers[customer.ID] = *customer
	return nil
}

func (r *memCustomers) FindAddress(ctx context.Context, userID uuid.UUID, address string) (*domain.CustomerAddress, error) {
	for _, a := range r.db.addresses {
		if a.UserID == userID && a.Address == address {
			addr := a
			return &addr, nil
		}
	}
	return nil, &errors.ErrNotFound{Resource: "address", ID: address}
}

func (r *memCustomers) CreateAddress(ctx context.Context, address *domain.CustomerAddress) error {
	address.ID = uuid.New()
	address.CreatedAt = r.db.now
	r.db.addresses = append(r.db.addresses, *address)
	return nil
}

type memOrders struct{ db *memDB }

func (r *memOrders) Create(ctx context.Context, order *domain.Order) error {
	order.ID = uuid.New()
	order.CreatedAt = r.db.now
	r.db.orders = append(r.db.orders, *order)
	return nil
}

func (r *memOrders) CreateDetail(ctx context.Context, detail *domain.OrderDetail) error {
	detail.ID = uuid.New()
	r.db.details = append(r.db.details, *detail)
	return nil
}

func (r *memOrders) Update(ctx context.Context, order *domain.Order) error {
	for i := range r.db.orders {
		if r.db.orders[i].ID == order.ID {
			r.db.orders[i] = *order
			return nil
		}
	}
	return &errors.ErrNotFound{Resource: "order", ID: order.ID.String()}
}

func (r *memOrders) CreateTransaction(ctx context.Context, trx *domain.Transaction) error {
	trx.ID = uuid.New()
	r.db.transactions = append(r.db.transactions, *trx)
	return nil
}

func (r *memOrders) UnlockDigitalFiles(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	if _, ok := r.db.unlocked[orderID]; !ok {
		r.db.unlocked[orderID] = at
	}
	return nil
}

// fakeGateway serves canned order bodies keyed by external order id
type fakeGateway struct {
	orders   map[string]json.RawMessage
	err      error
	products []easyorders.Product
	fetches  int
	pushed   []string
	onFetch  func()
}

func (g *fakeGateway) FetchOrderDetails(ctx context.Context, store *domain.Store, externalOrderID string) (json.RawMessage, error) {
	g.fetches++
	if g.onFetch != nil {
		g.onFetch()
	}
	if g.err != nil {
		return nil, g.err
	}
	body, ok := g.orders[externalOrderID]
	if !ok {
		return nil, &errors.ErrUpstreamUnavailable{StatusCode: 404, Err: fmt.Errorf("order not found")}
	}
	return body, nil
}

func (g *fakeGateway) FetchProductList(ctx context.Context, store *domain.Store, page int) ([]easyorders.Product, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.products, nil
}

func (g *fakeGateway) UpdateOrderStatus(ctx context.Context, store *domain.Store, externalOrderID, status string) error {
	if g.err != nil {
		return g.err
	}
	g.pushed = append(g.pushed, externalOrderID+":"+status)
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}
