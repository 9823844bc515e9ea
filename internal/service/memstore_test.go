package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"marketplace-checkout/internal/models"
	"marketplace-checkout/internal/storage"
)

// memStore is an in-memory stand-in for storage.Storage. WithinTx snapshots
// the whole state up front and restores it when the callback fails, so the
// rollback semantics under test are real.
type memStore struct {
	products   map[int64]*models.Product
	stores     map[int64]*models.Store
	addresses  map[int64]*models.Address
	promos     map[int64]*models.PromoCode
	carts      map[int64]*models.Cart
	cartItems  map[int64]*models.CartItem
	orders     map[int64]*models.Order
	orderItems map[int64][]models.OrderItem
	nextID     int64
}

func newMemStore() *memStore {
	return &memStore{
		products:   make(map[int64]*models.Product),
		stores:     make(map[int64]*models.Store),
		addresses:  make(map[int64]*models.Address),
		promos:     make(map[int64]*models.PromoCode),
		carts:      make(map[int64]*models.Cart),
		cartItems:  make(map[int64]*models.CartItem),
		orders:     make(map[int64]*models.Order),
		orderItems: make(map[int64][]models.OrderItem),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addProduct(p models.Product) *models.Product {
	if p.ID == 0 {
		p.ID = m.id()
	}
	if p.Status == "" {
		p.Status = models.ProductStatusActive
	}
	if p.VisibilityScope == "" {
		p.VisibilityScope = models.VisibilityGlobal
	}
	if p.MinOrderQty == 0 {
		p.MinOrderQty = 1
	}
	m.products[p.ID] = &p
	return &p
}

func (m *memStore) addStore(s models.Store) *models.Store {
	if s.ID == 0 {
		s.ID = m.id()
	}
	m.stores[s.ID] = &s
	return &s
}

func (m *memStore) addAddress(a models.Address) *models.Address {
	if a.ID == 0 {
		a.ID = m.id()
	}
	m.addresses[a.ID] = &a
	return &a
}

func (m *memStore) addPromo(p models.PromoCode) *models.PromoCode {
	if p.ID == 0 {
		p.ID = m.id()
	}
	m.promos[p.ID] = &p
	return &p
}

func (m *memStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product not found: %d", id)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	ids := make([]int64, 0, len(m.products))
	for id, p := range m.products {
		if p.Status == models.ProductStatusActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.products[id])
	}
	return out, nil
}

func (m *memStore) GetStoreByID(ctx context.Context, id int64) (*models.Store, error) {
	s, ok := m.stores[id]
	if !ok {
		return nil, fmt.Errorf("store not found: %d", id)
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) GetStoresByIDs(ctx context.Context, ids []int64) ([]models.Store, error) {
	out := make([]models.Store, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.stores[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) GetAddressByID(ctx context.Context, id int64) (*models.Address, error) {
	a, ok := m.addresses[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) GetCustomerCityID(ctx context.Context, customerID int64) (int64, error) {
	for _, a := range m.addresses {
		if a.CustomerID == customerID && a.IsDefault {
			if a.CityID == nil {
				return 0, nil
			}
			return *a.CityID, nil
		}
	}
	return 0, nil
}

func (m *memStore) FindOpenCart(ctx context.Context, customerID int64) (*models.Cart, error) {
	for _, c := range m.carts {
		if c.CustomerID == customerID && c.Status == models.CartStatusOpen {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateCart(ctx context.Context, cart *models.Cart) error {
	cart.ID = m.id()
	cart.Status = models.CartStatusOpen
	cp := *cart
	m.carts[cart.ID] = &cp
	return nil
}

func (m *memStore) GetCartByID(ctx context.Context, id int64) (*models.Cart, error) {
	c, ok := m.carts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetCartItemByID(ctx context.Context, id int64) (*models.CartItem, error) {
	it, ok := m.cartItems[id]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (m *memStore) FindCartItemByProduct(ctx context.Context, cartID, productID int64) (*models.CartItem, error) {
	for _, it := range m.cartItems {
		if it.CartID == cartID && it.ProductID == productID {
			cp := *it
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	ids := make([]int64, 0, len(m.cartItems))
	for id, it := range m.cartItems {
		if it.CartID == cartID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]models.CartItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.cartItems[id])
	}
	return out, nil
}

func (m *memStore) GetCartItemsByIDs(ctx context.Context, cartID int64, ids []int64) ([]models.CartItem, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make([]models.CartItem, 0, len(sorted))
	for _, id := range sorted {
		if it, ok := m.cartItems[id]; ok && it.CartID == cartID {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *memStore) CreateCartItem(ctx context.Context, item *models.CartItem) error {
	item.ID = m.id()
	cp := *item
	m.cartItems[item.ID] = &cp
	return nil
}

func (m *memStore) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int, subtotal int64) error {
	it, ok := m.cartItems[itemID]
	if !ok {
		return fmt.Errorf("cart item not found: %d", itemID)
	}
	it.Quantity = quantity
	it.Subtotal = subtotal
	return nil
}

func (m *memStore) DeleteCartItem(ctx context.Context, itemID int64) error {
	delete(m.cartItems, itemID)
	return nil
}

func (m *memStore) GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	for _, p := range m.promos {
		if p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return append([]models.OrderItem(nil), m.orderItems[orderID]...), nil
}

func (m *memStore) GetOrdersByCustomerID(ctx context.Context, customerID int64) ([]models.Order, error) {
	var out []models.Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) snapshot() *memStore {
	cp := newMemStore()
	cp.nextID = m.nextID
	for id, v := range m.products {
		c := *v
		cp.products[id] = &c
	}
	for id, v := range m.stores {
		c := *v
		cp.stores[id] = &c
	}
	for id, v := range m.addresses {
		c := *v
		cp.addresses[id] = &c
	}
	for id, v := range m.promos {
		c := *v
		cp.promos[id] = &c
	}
	for id, v := range m.carts {
		c := *v
		cp.carts[id] = &c
	}
	for id, v := range m.cartItems {
		c := *v
		cp.cartItems[id] = &c
	}
	for id, v := range m.orders {
		c := *v
		cp.orders[id] = &c
	}
	for id, v := range m.orderItems {
		cp.orderItems[id] = append([]models.OrderItem(nil), v...)
	}
	return cp
}

func (m *memStore) restore(from *memStore) {
	m.nextID = from.nextID
	m.products = from.products
	m.stores = from.stores
	m.addresses = from.addresses
	m.promos = from.promos
	m.carts = from.carts
	m.cartItems = from.cartItems
	m.orders = from.orders
	m.orderItems = from.orderItems
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx storage.TxOps) error) error {
	before := m.snapshot()
	if err := fn(&memTx{store: m}); err != nil {
		m.restore(before)
		return err
	}
	return nil
}

// memTx applies checkout writes directly to the memStore; WithinTx handles
// rollback.
type memTx struct {
	store *memStore
}

func (t *memTx) CreateOrder(ctx context.Context, order *models.Order) error {
	order.ID = t.store.id()
	cp := *order
	cp.Items = nil
	t.store.orders[order.ID] = &cp
	return nil
}

func (t *memTx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	item.ID = t.store.id()
	t.store.orderItems[item.OrderID] = append(t.store.orderItems[item.OrderID], *item)
	return nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	p, ok := t.store.products[productID]
	if !ok {
		return fmt.Errorf("product not found: %d", productID)
	}
	if p.Stock == nil {
		return nil
	}
	if *p.Stock < quantity {
		return storage.ErrInsufficientStock
	}
	remaining := *p.Stock - quantity
	p.Stock = &remaining
	return nil
}

func (t *memTx) RedeemPromo(ctx context.Context, promoID int64) error {
	p, ok := t.store.promos[promoID]
	if !ok {
		return fmt.Errorf("promo not found: %d", promoID)
	}
	if !p.Active || (p.Quota != nil && p.Used >= *p.Quota) {
		return storage.ErrPromoExhausted
	}
	p.Used++
	return nil
}

func (t *memTx) DeleteCartItems(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		delete(t.store.cartItems, id)
	}
	return nil
}

func (t *memTx) CountCartItems(ctx context.Context, cartID int64) (int, error) {
	count := 0
	for _, it := range t.store.cartItems {
		if it.CartID == cartID {
			count++
		}
	}
	return count, nil
}

func (t *memTx) ConvertCart(ctx context.Context, cartID int64, at time.Time) error {
	c, ok := t.store.carts[cartID]
	if !ok {
		return fmt.Errorf("cart not found: %d", cartID)
	}
	c.Status = models.CartStatusConverted
	c.CheckedOutAt = &at
	return nil
}

func int64p(v int64) *int64 { return &v }
func intp(v int) *int       { return &v }
