package domain

// CartLine is a single product in the cart.
type CartLine struct {
	Product  ProductRef `json:"product"`
	Quantity int        `json:"quantity"`
}

// Subtotal is price times quantity.
func (l CartLine) Subtotal() int64 {
	return l.Product.Price * int64(l.Quantity)
}

// SelectionSet holds the ids of lines chosen for checkout.
type SelectionSet map[ProductID]struct{}

// Has reports whether id is selected.
func (s SelectionSet) Has(id ProductID) bool {
	_, ok := s[id]
	return ok
}

// Cart is the ordered list of lines, unique by product id, plus the
// selection. Aggregates are computed on demand and never stored.
type Cart struct {
	Lines     []CartLine   `json:"lines"`
	Selection SelectionSet `json:"-"`
}

// Summary carries the derived aggregates of a cart.
type Summary struct {
	TotalItems         int   `json:"total_items"`
	TotalPrice         int64 `json:"total_price"`
	SelectedTotalItems int   `json:"selected_total_items"`
	SelectedTotalPrice int64 `json:"selected_total_price"`
}

// Index returns the position of the line for id, or -1.
func (c *Cart) Index(id ProductID) int {
	for i := range c.Lines {
		if c.Lines[i].Product.ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether the cart has a line for id.
func (c *Cart) Contains(id ProductID) bool {
	return c.Index(id) >= 0
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// IDs returns the product ids in line order.
func (c *Cart) IDs() []ProductID {
	ids := make([]ProductID, len(c.Lines))
	for i, l := range c.Lines {
		ids[i] = l.Product.ID
	}
	return ids
}

// TotalItems is the sum of line quantities.
func (c *Cart) TotalItems() int {
	var n int
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// TotalPrice is the sum of line subtotals.
func (c *Cart) TotalPrice() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.Subtotal()
	}
	return total
}

// SelectedLines returns the lines whose ids are in the selection, in cart order.
func (c *Cart) SelectedLines() []CartLine {
	lines := make([]CartLine, 0, len(c.Selection))
	for _, l := range c.Lines {
		if c.Selection.Has(l.Product.ID) {
			lines = append(lines, l)
		}
	}
	return lines
}

// SelectedTotalItems is TotalItems restricted to the selection.
func (c *Cart) SelectedTotalItems() int {
	var n int
	for _, l := range c.SelectedLines() {
		n += l.Quantity
	}
	return n
}

// SelectedTotalPrice is TotalPrice restricted to the selection.
func (c *Cart) SelectedTotalPrice() int64 {
	var total int64
	for _, l := range c.SelectedLines() {
		total += l.Subtotal()
	}
	return total
}

// AllSelected reports whether every line is selected. An empty cart is never
// all-selected.
func (c *Cart) AllSelected() bool {
	if len(c.Lines) == 0 {
		return false
	}
	for _, l := range c.Lines {
		if !c.Selection.Has(l.Product.ID) {
			return false
		}
	}
	return true
}

// Summary computes every aggregate at once.
func (c *Cart) Summary() Summary {
	return Summary{
		TotalItems:         c.TotalItems(),
		TotalPrice:         c.TotalPrice(),
		SelectedTotalItems: c.SelectedTotalItems(),
		SelectedTotalPrice: c.SelectedTotalPrice(),
	}
}

// Clone returns a deep copy that shares no state with c.
func (c *Cart) Clone() Cart {
	out := Cart{Lines: make([]CartLine, len(c.Lines))}
	copy(out.Lines, c.Lines)
	if c.Selection != nil {
		out.Selection = make(SelectionSet, len(c.Selection))
		for id := range c.Selection {
			out.Selection[id] = struct{}{}
		}
	}
	return out
}
