package staging

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	ErrCommitInFlight = errors.New("a commit is already in flight for this session")
	ErrSessionClean   = errors.New("no staged changes to commit")
	ErrStaleSession   = errors.New("authoritative state unknown; refetch the order before committing")
	ErrOrderBusy      = errors.New("order is locked by another submission; try again")
)

// CommitState representa a fase corrente do protocolo de commit.
// A ordem Submitting → Merging → Rendering → Clean é invariante: a fase 1
// (merge de identidades) sempre completa antes de qualquer refresh de
// exibição, para não destruir estado transiente de outros donos da UI.
type CommitState string

const (
	CommitIdle       CommitState = "idle"
	CommitSubmitting CommitState = "submitting"
	CommitMerging    CommitState = "merging"
	CommitRendering  CommitState = "rendering"
	CommitClean      CommitState = "clean"
)

// CommitItem é a forma de um item no request de commit
type CommitItem struct {
	ID              string  `json:"id,omitempty"`
	TempID          string  `json:"temp_id,omitempty"`
	ProductID       string  `json:"product_id"`
	Quantity        int     `json:"quantity"`
	UnitPriceCents  int64   `json:"unit_price_cents"`
	DiscountKind    string  `json:"discount_kind"`
	DiscountPercent float64 `json:"discount_percent,omitempty"`
	FixedPriceCents int64   `json:"fixed_price_cents,omitempty"`
	Deleted         bool    `json:"deleted,omitempty"`
}

// CommitRequest serializa o ChangeSet completo em um único request
type CommitRequest struct {
	Items                 []CommitItem `json:"items"`
	GlobalDiscountPercent float64      `json:"global_discount_percent"`
	RequestedPoints       int64        `json:"requested_points"`
	Notes                 []Note       `json:"notes,omitempty"`
	Billing               *Address     `json:"billing_address,omitempty"`
	Shipping              *Address     `json:"shipping_address,omitempty"`
}

// CommittedItem é um item no snapshot autoritativo devolvido pelo servidor.
// TempID ecoa o id local do cliente para o merge de identidades da fase 1.
type CommittedItem struct {
	ID              string  `json:"id"`
	TempID          string  `json:"temp_id,omitempty"`
	ProductID       string  `json:"product_id"`
	Quantity        int     `json:"quantity"`
	UnitPriceCents  int64   `json:"unit_price_cents"`
	DiscountKind    string  `json:"discount_kind"`
	DiscountPercent float64 `json:"discount_percent,omitempty"`
	FixedPriceCents int64   `json:"fixed_price_cents,omitempty"`
}

// ItemError é um erro de validação por item devolvido pelo servidor.
// Sucesso parcial é esperado: o resto do ChangeSet aplicado permanece.
type ItemError struct {
	ID     string `json:"id,omitempty"`
	TempID string `json:"temp_id,omitempty"`
	Error  string `json:"error"`
}

// CommitResponse é o snapshot autoritativo pós-commit
type CommitResponse struct {
	OrderID               string          `json:"order_id"`
	CustomerID            string          `json:"customer_id"`
	Items                 []CommittedItem `json:"items"`
	GlobalDiscountPercent float64         `json:"global_discount_percent"`
	AppliedPoints         int64           `json:"applied_points"`
	PointsDiscountCents   int64           `json:"points_discount_cents"`
	BalanceRemaining      int64           `json:"balance_remaining"`
	Billing               Address         `json:"billing_address"`
	Shipping              Address         `json:"shipping_address"`
	ItemErrors            []ItemError     `json:"item_errors,omitempty"`
	Errors                []string        `json:"errors,omitempty"`
}

// OrderSnapshot é o estado autoritativo devolvido pelo load do pedido
type OrderSnapshot struct {
	OrderID               string          `json:"order_id"`
	CustomerID            string          `json:"customer_id"`
	Items                 []CommittedItem `json:"items"`
	GlobalDiscountPercent float64         `json:"global_discount_percent"`
	AppliedPoints         int64           `json:"applied_points"`
	PointsDiscountCents   int64           `json:"points_discount_cents"`
	Billing               Address         `json:"billing_address"`
	Shipping              Address         `json:"shipping_address"`
}

// SaveComplete é o evento publicado aos colaboradores externos (painéis de
// endereço, tickets, CRM) após a fase 2. Eles só precisam do cliente e dos
// pontos aplicados, não da mecânica interna de staging.
type SaveComplete struct {
	OrderID       string
	CustomerID    string
	AppliedPoints int64
}

// Submitter abstrai a fronteira de rede do protocolo de commit
type Submitter interface {
	SubmitCommit(ctx context.Context, orderID string, req CommitRequest) (*CommitResponse, error)
	FetchOrder(ctx context.Context, orderID string) (*OrderSnapshot, error)
}

// HTTPSubmitter implementa Submitter contra o serviço draftorders
type HTTPSubmitter struct {
	client *resty.Client
}

// NewHTTPSubmitter cria o submitter HTTP com timeout limitado
func NewHTTPSubmitter(baseURL string, timeout time.Duration) *HTTPSubmitter {
	return &HTTPSubmitter{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
	}
}

type apiError struct {
	Error string `json:"error"`
}

// SubmitCommit envia o ChangeSet completo em um único request
func (s *HTTPSubmitter) SubmitCommit(ctx context.Context, orderID string, req CommitRequest) (*CommitResponse, error) {
	var result CommitResponse
	var apiErr apiError
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&apiErr).
		Post("/api/orders/" + orderID + "/commit")
	if err != nil {
		return nil, fmt.Errorf("failed to submit commit: %w", err)
	}
	if resp.StatusCode() == http.StatusConflict {
		return nil, ErrOrderBusy
	}
	if resp.IsError() {
		return nil, fmt.Errorf("commit rejected by server: %s", apiErr.Error)
	}
	return &result, nil
}

// FetchOrder busca o estado autoritativo do pedido
func (s *HTTPSubmitter) FetchOrder(ctx context.Context, orderID string) (*OrderSnapshot, error) {
	var result OrderSnapshot
	var apiErr apiError
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&apiErr).
		Get("/api/orders/" + orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch rejected by server: %s", apiErr.Error)
	}
	return &result, nil
}

// sentState é o snapshot do ChangeSet efetivamente enviado. O callback de
// rede nunca relê o estado vivo da sessão: edições feitas com o request em
// voo precisam continuar sujas depois que ele resolver.
type sentState struct {
	items     map[string]CommitItem
	noteCount int
	points    int64
	billing   *Address
	shipping  *Address
}

// Protocol é o dono único do commit em duas fases
type Protocol struct {
	session   *Session
	submitter Submitter

	state        CommitState
	needsRefetch bool
	listeners    []func(SaveComplete)
}

// NewProtocol cria o protocolo de commit para uma sessão
func NewProtocol(session *Session, submitter Submitter) *Protocol {
	return &Protocol{
		session:   session,
		submitter: submitter,
		state:     CommitIdle,
	}
}

// State retorna a fase corrente do protocolo
func (p *Protocol) State() CommitState {
	return p.state
}

// NeedsRefetch informa se um timeout deixou o estado autoritativo
// desconhecido. Enquanto verdadeiro, nenhum commit novo é permitido.
func (p *Protocol) NeedsRefetch() bool {
	return p.needsRefetch
}

// OnSaveComplete registra um colaborador externo interessado no evento de
// conclusão do save
func (p *Protocol) OnSaveComplete(fn func(SaveComplete)) {
	p.listeners = append(p.listeners, fn)
}

// CanCommit é o sinal que habilita o controle de salvar na UI
func (p *Protocol) CanCommit() bool {
	return !p.inFlight() && !p.needsRefetch && IsDirty(p.session)
}

// Commit executa o protocolo completo: fase 0 (submit), fase 1 (merge de
// identidades) e fase 2 (refresh de exibição + novo baseline).
func (p *Protocol) Commit(ctx context.Context) (*CommitResponse, error) {
	if p.inFlight() {
		return nil, ErrCommitInFlight
	}
	if p.needsRefetch {
		return nil, ErrStaleSession
	}
	if !IsDirty(p.session) {
		return nil, ErrSessionClean
	}

	req, sent := buildCommitRequest(p.session)

	p.state = CommitSubmitting
	resp, err := p.submitter.SubmitCommit(ctx, p.session.OrderID, req)
	if err != nil {
		p.state = CommitIdle
		if isTimeout(err) {
			// O servidor pode ter aplicado o commit mesmo sem a resposta
			// chegar. Não assumir nem sucesso nem falha.
			p.needsRefetch = true
		}
		return nil, err
	}

	p.state = CommitMerging
	p.mergeIdentities(resp, sent)

	p.state = CommitRendering
	p.refreshBaseline(resp)

	p.state = CommitClean
	for _, fn := range p.listeners {
		fn(SaveComplete{
			OrderID:       resp.OrderID,
			CustomerID:    resp.CustomerID,
			AppliedPoints: resp.AppliedPoints,
		})
	}
	return resp, nil
}

// Refetch recarrega o estado autoritativo após um timeout e rearma o
// protocolo
func (p *Protocol) Refetch(ctx context.Context) error {
	if p.inFlight() {
		return ErrCommitInFlight
	}
	snap, err := p.submitter.FetchOrder(ctx, p.session.OrderID)
	if err != nil {
		return err
	}
	p.session.resetFromSnapshot(snap)
	p.needsRefetch = false
	p.state = CommitIdle
	return nil
}

func (p *Protocol) inFlight() bool {
	switch p.state {
	case CommitSubmitting, CommitMerging, CommitRendering:
		return true
	}
	return false
}

// buildCommitRequest serializa o estado staged corrente e devolve também o
// snapshot do que foi enviado
func buildCommitRequest(s *Session) (CommitRequest, sentState) {
	req := CommitRequest{
		GlobalDiscountPercent: s.GlobalDiscountPercent,
		RequestedPoints:       s.PointsRequested,
	}
	sent := sentState{
		items:     make(map[string]CommitItem, len(s.Items)),
		noteCount: len(s.NotesToAdd),
		points:    s.PointsRequested,
	}

	for i := range s.Items {
		item := s.Items[i]
		wire := CommitItem{
			ID:              item.ID,
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			DiscountKind:    string(item.Discount.Kind),
			DiscountPercent: item.Discount.Percent,
			FixedPriceCents: item.Discount.FixedPriceCents,
			Deleted:         item.Lifecycle == LifecyclePendingDelete,
		}
		if !item.Existing() {
			wire.TempID = item.TempID
		}
		req.Items = append(req.Items, wire)
		sent.items[item.Key()] = wire
	}

	if len(s.NotesToAdd) > 0 {
		req.Notes = append([]Note(nil), s.NotesToAdd...)
	}
	if s.BillingOverride != nil {
		b := *s.BillingOverride
		req.Billing = &b
		sent.billing = &b
	}
	if s.ShippingOverride != nil {
		sh := *s.ShippingOverride
		req.Shipping = &sh
		sent.shipping = &sh
	}
	return req, sent
}

// mergeIdentities é a fase 1: troca TempIDs por ids estáveis do servidor e
// limpa flags de insert/delete confirmados, sem tocar em exibição derivada.
func (p *Protocol) mergeIdentities(resp *CommitResponse, sent sentState) {
	s := p.session

	byTempID := make(map[string]CommittedItem, len(resp.Items))
	byID := make(map[string]CommittedItem, len(resp.Items))
	for _, it := range resp.Items {
		if it.TempID != "" {
			byTempID[it.TempID] = it
		}
		byID[it.ID] = it
	}
	errored := make(map[string]bool, len(resp.ItemErrors))
	for _, ie := range resp.ItemErrors {
		if ie.TempID != "" {
			errored["tmp:"+ie.TempID] = true
		}
		if ie.ID != "" {
			errored[ie.ID] = true
		}
	}

	kept := s.Items[:0]
	for i := range s.Items {
		item := s.Items[i]
		key := item.Key()
		wire, wasSent := sent.items[key]

		switch {
		case item.Lifecycle == LifecyclePendingInsert:
			if confirmed, ok := byTempID[item.TempID]; ok && !errored[key] {
				item.ID = confirmed.ID
				item.Lifecycle = LifecycleUnchanged
			}
			kept = append(kept, item)

		case item.Lifecycle == LifecyclePendingDelete:
			_, stillThere := byID[item.ID]
			if wasSent && wire.Deleted && !stillThere && !errored[key] {
				// remoção confirmada: some da sessão e do deletion set
				delete(s.deleted, key)
				continue
			}
			kept = append(kept, item)

		default:
			if wasSent && !errored[key] {
				item.Lifecycle = LifecycleUnchanged
			}
			kept = append(kept, item)
		}
	}
	s.Items = kept

	// Pontos: o valor aplicado (possivelmente reduzido pelo clamp) é
	// autoritativo, desde que o operador não tenha editado durante o voo.
	if s.PointsRequested == sent.points {
		s.PointsRequested = resp.AppliedPoints
	}

	if sent.noteCount <= len(s.NotesToAdd) {
		s.NotesToAdd = s.NotesToAdd[sent.noteCount:]
	}
	if sent.billing != nil && s.BillingOverride != nil && *s.BillingOverride == *sent.billing {
		s.BillingOverride = nil
	}
	if sent.shipping != nil && s.ShippingOverride != nil && *s.ShippingOverride == *sent.shipping {
		s.ShippingOverride = nil
	}
}

// refreshBaseline é a fase 2: recalcula as exibições derivadas e só então
// substitui o baseline pelo estado autoritativo, rearmando o detector.
func (p *Protocol) refreshBaseline(resp *CommitResponse) {
	s := p.session
	s.rebaseline(baselineState{
		items:                 itemsFromWire(resp.Items),
		globalDiscountPercent: resp.GlobalDiscountPercent,
		pointsRequested:       resp.AppliedPoints,
		billing:               resp.Billing,
		shipping:              resp.Shipping,
	})
	s.notify()
}

// SessionFromSnapshot monta uma sessão nova a partir do load do pedido
func SessionFromSnapshot(snap *OrderSnapshot) *Session {
	return NewSession(
		snap.OrderID,
		snap.CustomerID,
		itemsFromWire(snap.Items),
		snap.GlobalDiscountPercent,
		snap.AppliedPoints,
		snap.Billing,
		snap.Shipping,
	)
}

// resetFromSnapshot descarta a cópia de trabalho e realinha sessão e
// baseline com o snapshot autoritativo
func (s *Session) resetFromSnapshot(snap *OrderSnapshot) {
	items := itemsFromWire(snap.Items)
	s.CustomerID = snap.CustomerID
	s.Items = cloneItems(items)
	s.GlobalDiscountPercent = snap.GlobalDiscountPercent
	s.PointsRequested = snap.AppliedPoints
	s.NotesToAdd = nil
	s.BillingOverride = nil
	s.ShippingOverride = nil
	s.deleted = make(map[string]priorState)
	s.rebaseline(baselineState{
		items:                 items,
		globalDiscountPercent: snap.GlobalDiscountPercent,
		pointsRequested:       snap.AppliedPoints,
		billing:               snap.Billing,
		shipping:              snap.Shipping,
	})
	s.notify()
}

func itemsFromWire(items []CommittedItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, LineItem{
			ID:             it.ID,
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			Discount:       discountFromWire(it.DiscountKind, it.DiscountPercent, it.FixedPriceCents),
			Lifecycle:      LifecycleUnchanged,
		})
	}
	return out
}

func discountFromWire(kind string, percent float64, fixedCents int64) DiscountPolicy {
	switch DiscountKind(kind) {
	case DiscountPercentOverride:
		return PercentOverride(percent)
	case DiscountFixedPrice:
		return FixedPrice(fixedCents)
	default:
		return FollowsGlobal()
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
