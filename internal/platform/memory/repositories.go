package memory

import (
	"context"
	"sort"

	cart "github.com/dmehra2102/marketplace-orders/internal/cart/domain"
	catalog "github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
	order "github.com/dmehra2102/marketplace-orders/internal/order/domain"
)

type Products struct{ s *Store }

func (r *Products) Create(_ context.Context, p catalog.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.products[p.ID] = p
	return nil
}

func (r *Products) Get(_ context.Context, id string) (catalog.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (r *Products) List(_ context.Context) ([]catalog.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.filter(func(catalog.Product) bool { return true }), nil
}

func (r *Products) ListLowStock(_ context.Context, vendorID string, max int) ([]catalog.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.filter(func(p catalog.Product) bool { return p.VendorID == vendorID && p.Stock <= max })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stock < out[j].Stock })
	return out, nil
}

func (r *Products) Update(_ context.Context, id, vendorID string, patch catalog.Patch) (catalog.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[id]
	if !ok || p.VendorID != vendorID {
		return catalog.Product{}, catalog.ErrNotFound
	}
	p, err := p.Apply(patch, r.s.now().UTC())
	if err != nil {
		return catalog.Product{}, err
	}
	r.s.st.products[id] = p
	return p, nil
}

// Delete also drops cart lines that point at the product.
func (r *Products) Delete(_ context.Context, id, vendorID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[id]
	if !ok || p.VendorID != vendorID {
		return catalog.ErrNotFound
	}
	delete(r.s.st.products, id)
	for lineID, l := range r.s.st.cart {
		if l.ProductID == id {
			delete(r.s.st.cart, lineID)
		}
	}
	return nil
}

func (r *Products) AdjustStock(_ context.Context, id, vendorID string, delta int) (catalog.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[id]
	if !ok || (vendorID != "" && p.VendorID != vendorID) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	p, err := p.WithStockDelta(delta, r.s.now().UTC())
	if err != nil {
		return catalog.Product{}, err
	}
	r.s.st.products[id] = p
	return p, nil
}

func (r *Products) filter(keep func(catalog.Product) bool) []catalog.Product {
	var out []catalog.Product
	for _, p := range r.s.st.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type Carts struct{ s *Store }

func (r *Carts) AddOrMerge(_ context.Context, line cart.Line) (cart.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.products[line.ProductID]; !ok {
		return cart.Line{}, catalog.ErrNotFound
	}
	for id, existing := range r.s.st.cart {
		if existing.CustomerID == line.CustomerID && existing.ProductID == line.ProductID {
			q, err := cart.Merge(existing.Quantity, line.Quantity)
			if err != nil {
				return cart.Line{}, err
			}
			existing.Quantity = q
			existing.UpdatedAt = line.UpdatedAt
			r.s.st.cart[id] = existing
			return existing, nil
		}
	}
	if line.Quantity > cart.MaxQuantity {
		return cart.Line{}, cart.ErrQuantityLimit
	}
	r.s.st.cart[line.ID] = line
	return line, nil
}

func (r *Carts) List(_ context.Context, customerID string) ([]cart.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []cart.Line
	for _, l := range r.s.st.cart {
		if l.CustomerID == customerID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Carts) Update(_ context.Context, lineID, customerID string, apply func(cart.Line) (cart.UpdateResult, error)) (cart.UpdateResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.st.cart[lineID]
	if !ok || l.CustomerID != customerID {
		return cart.UpdateResult{}, cart.ErrNotFound
	}
	res, err := apply(l)
	if err != nil {
		return cart.UpdateResult{}, err
	}
	if res.Outcome == cart.Removed {
		delete(r.s.st.cart, lineID)
	} else {
		r.s.st.cart[lineID] = res.Line
	}
	return res, nil
}

func (r *Carts) Delete(_ context.Context, lineID, customerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.st.cart[lineID]
	if !ok || l.CustomerID != customerID {
		return cart.ErrNotFound
	}
	delete(r.s.st.cart, lineID)
	return nil
}

// Detailed returns the customer's lines joined with products.
func (r *Carts) Detailed(customerID string) []cart.DetailedLine {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return detailedLines(&r.s.st, customerID)
}

type Orders struct{ s *Store }

func (r *Orders) ListByCustomer(_ context.Context, customerID string, status order.Status) ([]order.LineView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.views(func(l order.Line) bool {
		return l.CustomerID == customerID && (status == "" || l.Status == status)
	}), nil
}

func (r *Orders) GetForCustomer(_ context.Context, lineID, customerID string) (order.LineView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	views := r.views(func(l order.Line) bool { return l.ID == lineID && l.CustomerID == customerID })
	if len(views) == 0 {
		return order.LineView{}, order.ErrNotFound
	}
	return views[0], nil
}

func (r *Orders) ListByVendor(_ context.Context, vendorID string, status order.Status) ([]order.LineView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.views(func(l order.Line) bool { return l.VendorID == vendorID && l.Status == status }), nil
}

func (r *Orders) views(keep func(order.Line) bool) []order.LineView {
	var out []order.LineView
	for _, l := range r.s.st.orders {
		if !keep(l) {
			continue
		}
		info := order.ProductInfo{Price: l.UnitPrice}
		if p, ok := r.s.st.products[l.ProductID]; ok {
			info = order.ProductInfo{Name: p.Name, Price: p.Price}
		}
		out = append(out, order.LineView{Line: l, Product: info})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
