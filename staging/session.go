package staging

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrItemNotFound    = errors.New("item not found in staging session")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidPercent  = errors.New("discount percent must be between 0 and 100")
	ErrInvalidPoints   = errors.New("requested points must not be negative")
	ErrEmptyNote       = errors.New("note body must not be empty")
	ErrNotDeleted      = errors.New("item is not marked for removal")
)

// priorState guarda os valores de um item no momento da remoção, para que
// UndoRemove restaure quantidade, desconto e lifecycle exatamente
type priorState struct {
	quantity  int
	discount  DiscountPolicy
	lifecycle LifecycleFlag
}

// baselineState é a cópia profunda do último estado commitado, usada
// somente para comparação. Só é substituída no load e após commit bem
// sucedido.
type baselineState struct {
	items                 []LineItem
	globalDiscountPercent float64
	pointsRequested       int64
	billing               Address
	shipping              Address
}

// Session é a cópia de trabalho de um pedido em edição. Toda mutação passa
// pelos métodos Set*/Add*/Remove*; nenhum consumidor escreve nos campos
// diretamente.
type Session struct {
	OrderID    string
	CustomerID string

	Items                 []LineItem
	GlobalDiscountPercent float64
	PointsRequested       int64
	NotesToAdd            []Note
	BillingOverride       *Address
	ShippingOverride      *Address

	baseline baselineState
	deleted  map[string]priorState
	onChange func(OrderTotals, []FieldChange)
}

// NewSession cria a sessão de staging a partir do registro autoritativo do
// servidor e captura o snapshot de baseline.
func NewSession(orderID, customerID string, items []LineItem, globalDiscountPercent float64, committedPoints int64, billing, shipping Address) *Session {
	working := cloneItems(items)
	for i := range working {
		working[i].Lifecycle = LifecycleUnchanged
	}
	s := &Session{
		OrderID:               orderID,
		CustomerID:            customerID,
		Items:                 working,
		GlobalDiscountPercent: globalDiscountPercent,
		PointsRequested:       committedPoints,
		deleted:               make(map[string]priorState),
	}
	s.baseline = baselineState{
		items:                 cloneItems(working),
		globalDiscountPercent: globalDiscountPercent,
		pointsRequested:       committedPoints,
		billing:               billing,
		shipping:              shipping,
	}
	return s
}

// OnChange registra o callback disparado após cada mutação bem sucedida,
// com os agregados recalculados e o diff campo a campo. Síncrono e sem
// rede, para a UI refletir o estado imediatamente.
func (s *Session) OnChange(fn func(OrderTotals, []FieldChange)) {
	s.onChange = fn
}

// Totals recalcula os agregados de preço da sessão
func (s *Session) Totals() OrderTotals {
	return AggregateTotals(s.Items, s.GlobalDiscountPercent)
}

// SetQuantity altera a quantidade de um item. Para itens pré-existentes,
// quantidade 0 equivale a RemoveItem e quantidade > 0 limpa um
// PendingDelete anterior. Itens novos exigem quantidade mínima 1.
func (s *Session) SetQuantity(key string, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	item := s.findItem(key)
	if item == nil {
		return ErrItemNotFound
	}

	if !item.Existing() {
		if quantity < 1 {
			return ErrInvalidQuantity
		}
		item.Quantity = quantity
		s.notify()
		return nil
	}

	if quantity == 0 {
		return s.RemoveItem(key)
	}

	if item.Lifecycle == LifecyclePendingDelete {
		delete(s.deleted, key)
		item.Lifecycle = LifecyclePendingUpdate
	}
	item.Quantity = quantity
	if item.Lifecycle == LifecycleUnchanged {
		item.Lifecycle = LifecyclePendingUpdate
	}
	s.notify()
	return nil
}

// SetDiscount substitui a política de desconto de um item. A exclusão
// mútua entre percentual e preço fixo é garantida pelo tipo DiscountPolicy.
func (s *Session) SetDiscount(key string, policy DiscountPolicy) error {
	item := s.findItem(key)
	if item == nil {
		return ErrItemNotFound
	}
	item.Discount = policy
	if item.Existing() && item.Lifecycle == LifecycleUnchanged {
		item.Lifecycle = LifecyclePendingUpdate
	}
	s.notify()
	return nil
}

// AddItem adiciona um item novo à sessão, identificado por TempID até o
// commit atribuir um id estável. Retorna uma cópia do item staged.
func (s *Session) AddItem(productID string, quantity int, unitPriceCents int64) (LineItem, error) {
	if strings.TrimSpace(productID) == "" {
		return LineItem{}, ErrItemNotFound
	}
	if quantity < 1 {
		return LineItem{}, ErrInvalidQuantity
	}
	item := LineItem{
		TempID:         uuid.New().String(),
		ProductID:      productID,
		Quantity:       quantity,
		UnitPriceCents: unitPriceCents,
		Discount:       FollowsGlobal(),
		Lifecycle:      LifecyclePendingInsert,
	}
	s.Items = append(s.Items, item)
	s.notify()
	return item, nil
}

// RemoveItem marca um item pré-existente para remoção, guardando os
// valores originais para undo. Itens PendingInsert são removidos de vez.
func (s *Session) RemoveItem(key string) error {
	item := s.findItem(key)
	if item == nil {
		return ErrItemNotFound
	}

	if !item.Existing() {
		s.dropItem(key)
		s.notify()
		return nil
	}

	if item.Lifecycle == LifecyclePendingDelete {
		return nil
	}
	s.deleted[key] = priorState{
		quantity:  item.Quantity,
		discount:  item.Discount,
		lifecycle: item.Lifecycle,
	}
	item.Lifecycle = LifecyclePendingDelete
	s.notify()
	return nil
}

// UndoRemove restaura um item marcado para remoção aos valores exatos que
// tinha antes do RemoveItem
func (s *Session) UndoRemove(key string) error {
	prior, ok := s.deleted[key]
	if !ok {
		return ErrNotDeleted
	}
	item := s.findItem(key)
	if item == nil {
		return ErrItemNotFound
	}
	item.Quantity = prior.quantity
	item.Discount = prior.discount
	item.Lifecycle = prior.lifecycle
	delete(s.deleted, key)
	s.notify()
	return nil
}

// SetGlobalDiscount altera o percentual de desconto global do pedido
func (s *Session) SetGlobalDiscount(percent float64) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidPercent
	}
	s.GlobalDiscountPercent = percent
	s.notify()
	return nil
}

// SetPointsRequested altera o total de pontos que o operador quer resgatar
func (s *Session) SetPointsRequested(points int64) error {
	if points < 0 {
		return ErrInvalidPoints
	}
	s.PointsRequested = points
	s.notify()
	return nil
}

// AddNote adiciona uma nota à lista staged. Notas já persistidas nunca são
// alteradas por aqui.
func (s *Session) AddNote(author, body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyNote
	}
	s.NotesToAdd = append(s.NotesToAdd, Note{
		Author:    author,
		Body:      body,
		CreatedAt: time.Now(),
	})
	s.notify()
	return nil
}

// SetBillingAddress registra um endereço de cobrança pendente
func (s *Session) SetBillingAddress(a Address) {
	s.BillingOverride = &a
	s.notify()
}

// SetShippingAddress registra um endereço de entrega pendente
func (s *Session) SetShippingAddress(a Address) {
	s.ShippingOverride = &a
	s.notify()
}

// Cancel descarta a cópia de trabalho e restaura a sessão a partir do
// baseline, inclusive pontos staged e buffers transientes.
func (s *Session) Cancel() {
	s.Items = cloneItems(s.baseline.items)
	s.GlobalDiscountPercent = s.baseline.globalDiscountPercent
	s.PointsRequested = s.baseline.pointsRequested
	s.NotesToAdd = nil
	s.BillingOverride = nil
	s.ShippingOverride = nil
	s.deleted = make(map[string]priorState)
	s.notify()
}

// CommittedBilling retorna o endereço de cobrança do baseline
func (s *Session) CommittedBilling() Address {
	return s.baseline.billing
}

// CommittedShipping retorna o endereço de entrega do baseline
func (s *Session) CommittedShipping() Address {
	return s.baseline.shipping
}

// rebaseline substitui o snapshot pelo estado autoritativo pós-commit.
// Chamado somente pela fase 2 do CommitProtocol.
func (s *Session) rebaseline(b baselineState) {
	s.baseline = b
}

func (s *Session) findItem(key string) *LineItem {
	for i := range s.Items {
		if s.Items[i].Key() == key {
			return &s.Items[i]
		}
	}
	return nil
}

func (s *Session) dropItem(key string) {
	for i := range s.Items {
		if s.Items[i].Key() == key {
			s.Items = append(s.Items[:i], s.Items[i+1:]...)
			return
		}
	}
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange(s.Totals(), Diff(s))
	}
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
