package main

// CommitItemRequest é uma linha do ChangeSet enviado pelo cliente. Inserts
// carregam temp_id e o snapshot de preço capturado no staging; linhas
// existentes carregam o id estável.
type CommitItemRequest struct {
	ID              string  `json:"id,omitempty"`
	TempID          string  `json:"temp_id,omitempty"`
	ProductID       string  `json:"product_id" binding:"required"`
	Quantity        int     `json:"quantity"`
	UnitPriceCents  int64   `json:"unit_price_cents"`
	DiscountKind    string  `json:"discount_kind"`
	DiscountPercent float64 `json:"discount_percent"`
	FixedPriceCents int64   `json:"fixed_price_cents"`
	Deleted         bool    `json:"deleted"`
}

// NoteRequest é uma nota staged a persistir
type NoteRequest struct {
	Author string `json:"author"`
	Body   string `json:"body" binding:"required"`
}

// CommitRequest representa o ChangeSet completo de um commit
type CommitRequest struct {
	Items                 []CommitItemRequest `json:"items"`
	GlobalDiscountPercent float64             `json:"global_discount_percent" binding:"gte=0,lte=100"`
	RequestedPoints       int64               `json:"requested_points" binding:"gte=0"`
	Notes                 []NoteRequest       `json:"notes"`
	Billing               *Address            `json:"billing_address"`
	Shipping              *Address            `json:"shipping_address"`
}

// CommittedItemResponse é uma linha do snapshot autoritativo pós-commit.
// TempID ecoa o id local do cliente para o merge de identidades.
type CommittedItemResponse struct {
	ID              string  `json:"id"`
	TempID          string  `json:"temp_id,omitempty"`
	ProductID       string  `json:"product_id"`
	Quantity        int     `json:"quantity"`
	UnitPriceCents  int64   `json:"unit_price_cents"`
	DiscountKind    string  `json:"discount_kind"`
	DiscountPercent float64 `json:"discount_percent,omitempty"`
	FixedPriceCents int64   `json:"fixed_price_cents,omitempty"`
}

// ItemErrorResponse é um erro de validação por item. Sucesso parcial é
// esperado: o resto do ChangeSet aplicado não é descartado.
type ItemErrorResponse struct {
	ID     string `json:"id,omitempty"`
	TempID string `json:"temp_id,omitempty"`
	Error  string `json:"error"`
}

// CommitResponse é o snapshot autoritativo devolvido após o commit
type CommitResponse struct {
	OrderID               string                  `json:"order_id"`
	CustomerID            string                  `json:"customer_id"`
	Items                 []CommittedItemResponse `json:"items"`
	GlobalDiscountPercent float64                 `json:"global_discount_percent"`
	AppliedPoints         int64                   `json:"applied_points"`
	PointsDiscountCents   int64                   `json:"points_discount_cents"`
	BalanceRemaining      int64                   `json:"balance_remaining"`
	Billing               Address                 `json:"billing_address"`
	Shipping              Address                 `json:"shipping_address"`
	ItemErrors            []ItemErrorResponse     `json:"item_errors,omitempty"`
	Errors                []string                `json:"errors,omitempty"`
}

// OrderSnapshotResponse é o estado autoritativo devolvido pelo load
type OrderSnapshotResponse struct {
	OrderID               string                  `json:"order_id"`
	CustomerID            string                  `json:"customer_id"`
	Items                 []CommittedItemResponse `json:"items"`
	GlobalDiscountPercent float64                 `json:"global_discount_percent"`
	AppliedPoints         int64                   `json:"applied_points"`
	PointsDiscountCents   int64                   `json:"points_discount_cents"`
	Billing               Address                 `json:"billing_address"`
	Shipping              Address                 `json:"shipping_address"`
}

// ReconcileRequest é a fronteira do ledger: pedido + pontos desejados
type ReconcileRequest struct {
	RequestedPoints int64 `json:"requested_points" binding:"gte=0"`
}

// ReconcileResponse devolve o valor aplicado (possivelmente reduzido pelo
// clamp) como autoritativo
type ReconcileResponse struct {
	AppliedPoints    int64    `json:"applied_points"`
	DiscountCents    int64    `json:"discount_cents"`
	BalanceRemaining int64    `json:"balance_remaining"`
	Success          bool     `json:"success"`
	AlreadyProcessed bool     `json:"already_processed,omitempty"`
	Clamped          bool     `json:"clamped,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}
