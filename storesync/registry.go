// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesync

// TableSpec describes one synced entity table: its logical wire name, its
// storage-layer name, and the column the incremental pull delta is computed
// from. Almost every table pulls on updated_at; priceHistory is append-only
// history with no update path and pulls on created_at instead. That exception
// is deliberate per-table configuration, not something to unify.
type TableSpec struct {
	Name            string // Logical name used on the wire (e.g. "saleItems")
	SQLName         string // Storage table name (e.g. "sale_items")
	WatermarkColumn string // "updated_at" or "created_at"
}

// Tables returns the fixed set of synced entity tables.
func Tables() []TableSpec {
	return []TableSpec{
		{Name: "users", SQLName: "users", WatermarkColumn: "updated_at"},
		{Name: "categories", SQLName: "categories", WatermarkColumn: "updated_at"},
		{Name: "products", SQLName: "products", WatermarkColumn: "updated_at"},
		{Name: "customers", SQLName: "customers", WatermarkColumn: "updated_at"},
		{Name: "suppliers", SQLName: "suppliers", WatermarkColumn: "updated_at"},
		{Name: "sales", SQLName: "sales", WatermarkColumn: "updated_at"},
		{Name: "saleItems", SQLName: "sale_items", WatermarkColumn: "updated_at"},
		{Name: "supplierOrders", SQLName: "supplier_orders", WatermarkColumn: "updated_at"},
		{Name: "orderItems", SQLName: "order_items", WatermarkColumn: "updated_at"},
		{Name: "stockMovements", SQLName: "stock_movements", WatermarkColumn: "updated_at"},
		{Name: "creditTransactions", SQLName: "credit_transactions", WatermarkColumn: "updated_at"},
		{Name: "auditLogs", SQLName: "audit_logs", WatermarkColumn: "updated_at"},
		{Name: "expenses", SQLName: "expenses", WatermarkColumn: "updated_at"},
		{Name: "customerOrders", SQLName: "customer_orders", WatermarkColumn: "updated_at"},
		{Name: "customerOrderItems", SQLName: "customer_order_items", WatermarkColumn: "updated_at"},
		{Name: "priceHistory", SQLName: "price_history", WatermarkColumn: "created_at"},
	}
}

// Registry maps logical table names to their specs. It is an explicit injected
// value so the reconciliation engine stays a pure function of
// (scope, change-sets, store) with no ambient state.
type Registry struct {
	specs map[string]TableSpec
	order []TableSpec
}

// NewRegistry builds a registry from the given specs. Specs with an empty
// WatermarkColumn default to "updated_at".
func NewRegistry(specs []TableSpec) *Registry {
	r := &Registry{specs: make(map[string]TableSpec, len(specs))}
	for _, spec := range specs {
		if spec.WatermarkColumn == "" {
			spec.WatermarkColumn = "updated_at"
		}
		if spec.SQLName == "" {
			spec.SQLName = spec.Name
		}
		if _, dup := r.specs[spec.Name]; dup {
			continue
		}
		r.specs[spec.Name] = spec
		r.order = append(r.order, spec)
	}
	return r
}

// DefaultRegistry returns a registry over the full fixed table set.
func DefaultRegistry() *Registry {
	return NewRegistry(Tables())
}

// Lookup resolves a logical table name. Unknown names report ok=false; the
// engine skips them silently so client/server version skew never fails a sync.
func (r *Registry) Lookup(name string) (TableSpec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// All returns the registered specs in registration order.
func (r *Registry) All() []TableSpec {
	out := make([]TableSpec, len(r.order))
	copy(out, r.order)
	return out
}
