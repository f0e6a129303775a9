package memory

import (
	"context"
	"sort"
	"time"

	"voipbilling/internal/model"
	"voipbilling/internal/repository"

	"github.com/shopspring/decimal"
)

// ===== destination =====

type destinationRepo struct{ base }

func (r *destinationRepo) Create(ctx context.Context, d *model.Destination) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.destinations {
		if e.Code == d.Code {
			return repository.ErrDuplicate
		}
	}
	d.ID = s.nextID()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now()
	}
	d.UpdatedAt = d.CreatedAt
	c := *d
	s.destinations[d.ID] = &c
	id := d.ID
	r.log.push(func() { delete(s.destinations, id) })
	return nil
}

func (r *destinationRepo) Update(ctx context.Context, d *model.Destination) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.destinations[d.ID]
	if !ok {
		return repository.ErrDestinationNotFound
	}
	for _, e := range s.destinations {
		if e.ID != d.ID && e.Code == d.Code {
			return repository.ErrDuplicate
		}
	}
	c := *old
	c.Code, c.Name, c.Country, c.Region = d.Code, d.Name, d.Country, d.Region
	c.UpdatedAt = now()
	s.destinations[d.ID] = &c
	r.log.push(func() { s.destinations[old.ID] = old })
	return nil
}

func (r *destinationRepo) Delete(ctx context.Context, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.destinations[id]
	if !ok {
		return repository.ErrDestinationNotFound
	}
	delete(s.destinations, id)
	r.log.push(func() { s.destinations[id] = old })
	return nil
}

func (r *destinationRepo) GetByID(ctx context.Context, id int64) (*model.Destination, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.destinations[id]
	if !ok {
		return nil, repository.ErrDestinationNotFound
	}
	c := *d
	return &c, nil
}

func (r *destinationRepo) GetByCode(ctx context.Context, code string) (*model.Destination, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, d := range r.s.destinations {
		if d.Code == code {
			c := *d
			return &c, nil
		}
	}
	return nil, repository.ErrDestinationNotFound
}

func (r *destinationRepo) ListByCodes(ctx context.Context, codes []string) ([]*model.Destination, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	want := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		want[c] = struct{}{}
	}
	list := make([]*model.Destination, 0)
	for _, d := range r.s.destinations {
		if _, ok := want[d.Code]; ok {
			c := *d
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list, nil
}

func (r *destinationRepo) List(ctx context.Context) ([]*model.Destination, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	list := make([]*model.Destination, 0, len(r.s.destinations))
	for _, d := range r.s.destinations {
		c := *d
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list, nil
}

// ===== rate card =====

type rateCardRepo struct{ base }

func (r *rateCardRepo) Create(ctx context.Context, card *model.RateCard) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	card.ID = s.nextID()
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now()
	}
	card.UpdatedAt = card.CreatedAt
	c := *card
	s.rateCards[card.ID] = &c
	id := card.ID
	r.log.push(func() { delete(s.rateCards, id) })
	return nil
}

func (r *rateCardRepo) GetByID(ctx context.Context, id int64) (*model.RateCard, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	card, ok := r.s.rateCards[id]
	if !ok {
		return nil, repository.ErrRateCardNotFound
	}
	c := *card
	return &c, nil
}

func (r *rateCardRepo) UpdateStatus(ctx context.Context, id int64, fromStatus, toStatus string) error {
	if !model.CanRateCardTransitionTo(fromStatus, toStatus) {
		return repository.ErrRateCardStatusInvalid
	}

	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.rateCards[id]
	if !ok || old.Status != fromStatus {
		return repository.ErrRateCardStatusInvalid
	}
	c := *old
	c.Status = toStatus
	c.UpdatedAt = now()
	s.rateCards[id] = &c
	r.log.push(func() { s.rateCards[id] = old })
	return nil
}

func (r *rateCardRepo) List(ctx context.Context) ([]*model.RateCard, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	list := make([]*model.RateCard, 0, len(r.s.rateCards))
	for _, card := range r.s.rateCards {
		c := *card
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// ===== rate =====

type rateRepo struct{ base }

func (r *rateRepo) Create(ctx context.Context, rate *model.Rate) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rate.ID = s.nextID()
	if rate.CreatedAt.IsZero() {
		rate.CreatedAt = now()
	}
	c := *rate
	c.Destination = nil
	s.rates[rate.ID] = &c
	id := rate.ID
	r.log.push(func() { delete(s.rates, id) })
	return nil
}

// withDestination 调用方需持有读锁
func (r *rateRepo) withDestination(rate *model.Rate) *model.Rate {
	c := *rate
	if d, ok := r.s.destinations[rate.DestinationID]; ok {
		dc := *d
		c.Destination = &dc
	}
	return &c
}

func (r *rateRepo) GetByID(ctx context.Context, id int64) (*model.Rate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rate, ok := r.s.rates[id]
	if !ok {
		return nil, repository.ErrRateNotFound
	}
	return r.withDestination(rate), nil
}

func (r *rateRepo) ListByCard(ctx context.Context, rateCardID int64) ([]*model.Rate, error) {
	return r.filter(func(rate *model.Rate) bool { return rate.RateCardID == rateCardID }), nil
}

func (r *rateRepo) ListByCardAndDestination(ctx context.Context, rateCardID, destinationID int64) ([]*model.Rate, error) {
	return r.filter(func(rate *model.Rate) bool {
		return rate.RateCardID == rateCardID && rate.DestinationID == destinationID
	}), nil
}

func (r *rateRepo) FindByCodes(ctx context.Context, rateCardID int64, codes []string) ([]*model.Rate, error) {
	r.s.mu.RLock()
	destIDs := make(map[int64]struct{})
	for _, code := range codes {
		for _, d := range r.s.destinations {
			if d.Code == code {
				destIDs[d.ID] = struct{}{}
			}
		}
	}
	r.s.mu.RUnlock()

	return r.filter(func(rate *model.Rate) bool {
		if rate.RateCardID != rateCardID {
			return false
		}
		_, ok := destIDs[rate.DestinationID]
		return ok
	}), nil
}

func (r *rateRepo) CountByDestination(ctx context.Context, destinationID int64) (int64, error) {
	return int64(len(r.filter(func(rate *model.Rate) bool { return rate.DestinationID == destinationID }))), nil
}

func (r *rateRepo) filter(keep func(rate *model.Rate) bool) []*model.Rate {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	list := make([]*model.Rate, 0)
	for _, rate := range r.s.rates {
		if keep(rate) {
			list = append(list, r.withDestination(rate))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// ===== account =====

type accountRepo struct{ base }

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	if a.RateCardID != nil {
		id := *a.RateCardID
		c.RateCardID = &id
	}
	return &c
}

func (r *accountRepo) Create(ctx context.Context, account *model.Account) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.UserID == account.UserID {
			return repository.ErrDuplicate
		}
	}
	account.ID = s.nextID()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now()
	}
	account.UpdatedAt = account.CreatedAt
	s.accounts[account.ID] = cloneAccount(account)
	id := account.ID
	r.log.push(func() { delete(s.accounts, id) })
	return nil
}

func (r *accountRepo) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

// GetByIDForUpdate 内存实现没有行锁，同账户串行由 Locker 保证，版本号 CAS 兜底
func (r *accountRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *accountRepo) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, version int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.accounts[id]
	if !ok || old.Version != version {
		return repository.ErrOptimisticLock
	}
	c := cloneAccount(old)
	c.Balance = balance
	c.Version++
	c.UpdatedAt = now()
	s.accounts[id] = c
	r.log.push(func() { s.accounts[id] = old })
	return nil
}

func (r *accountRepo) UpdateConfig(ctx context.Context, account *model.Account) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.accounts[account.ID]
	if !ok {
		return repository.ErrAccountNotFound
	}
	c := cloneAccount(old)
	c.CreditLimit = account.CreditLimit
	c.ConcurrentCallsCap = account.ConcurrentCallsCap
	c.RateCardID = nil
	if account.RateCardID != nil {
		id := *account.RateCardID
		c.RateCardID = &id
	}
	c.UpdatedAt = now()
	s.accounts[account.ID] = c
	r.log.push(func() { s.accounts[old.ID] = old })
	return nil
}

func (r *accountRepo) ListIDs(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := make([]int64, 0)
	for id := range r.s.accounts {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// ===== transaction =====

type transactionRepo struct{ base }

func (r *transactionRepo) Create(ctx context.Context, trans *model.AccountTransaction) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := txKey{accountID: trans.AccountID, txType: trans.Type, reference: trans.Reference}
	if _, ok := s.txByRef[key]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := s.txByNo[trans.TransactionNo]; ok {
		return repository.ErrDuplicate
	}
	trans.ID = s.nextID()
	if trans.CreatedAt.IsZero() {
		trans.CreatedAt = now()
	}
	c := *trans
	s.transactions[trans.ID] = &c
	s.txByRef[key] = trans.ID
	s.txByNo[trans.TransactionNo] = trans.ID

	id, no := trans.ID, trans.TransactionNo
	r.log.push(func() {
		delete(s.transactions, id)
		delete(s.txByRef, key)
		delete(s.txByNo, no)
	})
	return nil
}

func (r *transactionRepo) GetByReference(ctx context.Context, accountID int64, txType, reference string) (*model.AccountTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.txByRef[txKey{accountID: accountID, txType: txType, reference: reference}]
	if !ok {
		return nil, nil
	}
	c := *r.s.transactions[id]
	return &c, nil
}

func (r *transactionRepo) byAccount(accountID int64) []*model.AccountTransaction {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	list := make([]*model.AccountTransaction, 0)
	for _, t := range r.s.transactions {
		if t.AccountID == accountID {
			c := *t
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (r *transactionRepo) ListByAccountID(ctx context.Context, accountID int64, page, pageSize int) ([]*model.AccountTransaction, int64, error) {
	all := r.byAccount(accountID)
	total := int64(len(all))

	// 倒序分页
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	start := (page - 1) * pageSize
	if start < 0 {
		start = 0
	}
	if start >= len(all) {
		return []*model.AccountTransaction{}, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *transactionRepo) ListAfter(ctx context.Context, accountID, afterID int64, limit int) ([]*model.AccountTransaction, error) {
	all := r.byAccount(accountID)
	list := make([]*model.AccountTransaction, 0)
	for _, t := range all {
		if t.ID > afterID {
			list = append(list, t)
			if limit > 0 && len(list) == limit {
				break
			}
		}
	}
	return list, nil
}

// ===== call record =====

type callRecordRepo struct{ base }

func (r *callRecordRepo) Create(ctx context.Context, record *model.CallRecord) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.callRecords[record.CallID]; ok {
		return repository.ErrDuplicate
	}
	record.ID = s.nextID()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now()
	}
	c := *record
	s.callRecords[record.CallID] = &c
	callID := record.CallID
	r.log.push(func() { delete(s.callRecords, callID) })
	return nil
}

func (r *callRecordRepo) GetByCallID(ctx context.Context, callID string) (*model.CallRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	record, ok := r.s.callRecords[callID]
	if !ok {
		return nil, nil
	}
	c := *record
	return &c, nil
}

func (r *callRecordRepo) byAccount(accountID int64, since *time.Time) []*model.CallRecord {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	list := make([]*model.CallRecord, 0)
	for _, record := range r.s.callRecords {
		if record.AccountID != accountID {
			continue
		}
		if since != nil && record.StartedAt.Before(*since) {
			continue
		}
		c := *record
		list = append(list, &c)
	}
	return list
}

func (r *callRecordRepo) ListRecent(ctx context.Context, accountID int64, since *time.Time, limit int) ([]*model.CallRecord, error) {
	list := r.byAccount(accountID, since)
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].StartedAt.After(list[j].StartedAt)
		}
		return list[i].ID > list[j].ID
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *callRecordRepo) Stats(ctx context.Context, accountID int64, since *time.Time) (*model.CallStats, error) {
	stats := &model.CallStats{TotalSpent: decimal.Zero}
	for _, record := range r.byAccount(accountID, since) {
		stats.TotalCalls++
		if record.Status == model.CallStatusAnswered {
			stats.AnsweredCalls++
		}
		stats.BillableSeconds += record.BillableDurationSeconds
		stats.TotalSpent = stats.TotalSpent.Add(record.SellAmount)
	}
	return stats, nil
}

// ===== call session =====

type callSessionRepo struct{ base }

func (r *callSessionRepo) Create(ctx context.Context, session *model.CallSession) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.CallID]; ok {
		return repository.ErrDuplicate
	}
	session.ID = s.nextID()
	c := *session
	s.sessions[session.CallID] = &c
	callID := session.CallID
	r.log.push(func() { delete(s.sessions, callID) })
	return nil
}

func (r *callSessionRepo) GetByCallID(ctx context.Context, callID string) (*model.CallSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	session, ok := r.s.sessions[callID]
	if !ok {
		return nil, nil
	}
	c := *session
	return &c, nil
}

func (r *callSessionRepo) Delete(ctx context.Context, callID string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.sessions[callID]
	if !ok {
		return false, nil
	}
	delete(s.sessions, callID)
	r.log.push(func() { s.sessions[callID] = old })
	return true, nil
}

func (r *callSessionRepo) CountByAccount(ctx context.Context) (map[int64]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[int64]int64)
	for _, session := range r.s.sessions {
		counts[session.AccountID]++
	}
	return counts, nil
}

func (r *callSessionRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]*model.CallSession, error) {
	r.s.mu.RLock()
	list := make([]*model.CallSession, 0)
	for _, session := range r.s.sessions {
		if session.AdmittedAt.Before(before) {
			c := *session
			list = append(list, &c)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].AdmittedAt.Before(list[j].AdmittedAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// ===== campaign =====

type campaignRepo struct{ base }

func (r *campaignRepo) Create(ctx context.Context, state *model.CampaignAniState) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[state.CampaignID]; ok {
		return repository.ErrDuplicate
	}
	state.ID = s.nextID()
	state.UpdatedAt = now()
	c := *state
	s.campaigns[state.CampaignID] = &c
	campaignID := state.CampaignID
	r.log.push(func() { delete(s.campaigns, campaignID) })
	return nil
}

func (r *campaignRepo) UpdateConfig(ctx context.Context, state *model.CampaignAniState) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.campaigns[state.CampaignID]
	if !ok {
		return repository.ErrCampaignNotFound
	}
	c := *old
	c.RotationEnabled = state.RotationEnabled
	c.StaticCallerID = state.StaticCallerID
	c.CallerIDPrefix = state.CallerIDPrefix
	c.UpdatedAt = now()
	s.campaigns[state.CampaignID] = &c
	r.log.push(func() { s.campaigns[old.CampaignID] = old })
	return nil
}

func (r *campaignRepo) GetByCampaignID(ctx context.Context, campaignID int64) (*model.CampaignAniState, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	state, ok := r.s.campaigns[campaignID]
	if !ok {
		return nil, repository.ErrCampaignNotFound
	}
	c := *state
	return &c, nil
}

func (r *campaignRepo) GetByCampaignIDForUpdate(ctx context.Context, campaignID int64) (*model.CampaignAniState, error) {
	return r.GetByCampaignID(ctx, campaignID)
}

func (r *campaignRepo) UpdateCounter(ctx context.Context, campaignID int64, fromCounter, toCounter int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.campaigns[campaignID]
	if !ok || old.RotationCounter != fromCounter {
		return repository.ErrOptimisticLock
	}
	c := *old
	c.RotationCounter = toCounter
	c.UpdatedAt = now()
	s.campaigns[campaignID] = &c
	r.log.push(func() { s.campaigns[campaignID] = old })
	return nil
}

// ===== outbox =====

type outboxRepo struct{ base }

func (r *outboxRepo) Create(ctx context.Context, msg *model.OutboxMessage) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = s.nextID()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}
	msg.UpdatedAt = msg.CreatedAt
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	c := *msg
	s.outbox[msg.ID] = &c
	id := msg.ID
	r.log.push(func() { delete(s.outbox, id) })
	return nil
}

func (r *outboxRepo) byStatus(status string, limit int) []*model.OutboxMessage {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	list := make([]*model.OutboxMessage, 0)
	for _, msg := range r.s.outbox {
		if msg.Status == status {
			c := *msg
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

func (r *outboxRepo) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	return r.byStatus(model.OutboxStatusPending, limit), nil
}

func (r *outboxRepo) GetFailedMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	return r.byStatus(model.OutboxStatusFailed, limit), nil
}

func (r *outboxRepo) mutate(id int64, fn func(msg *model.OutboxMessage)) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.outbox[id]
	if !ok {
		return nil
	}
	c := *old
	fn(&c)
	c.UpdatedAt = now()
	s.outbox[id] = &c
	r.log.push(func() { s.outbox[id] = old })
	return nil
}

func (r *outboxRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.mutate(id, func(msg *model.OutboxMessage) { msg.Status = status })
}

func (r *outboxRepo) IncrementRetryCount(ctx context.Context, id int64) error {
	return r.mutate(id, func(msg *model.OutboxMessage) { msg.RetryCount++ })
}

func (r *outboxRepo) MarkAsFailed(ctx context.Context, id int64) error {
	return r.mutate(id, func(msg *model.OutboxMessage) { msg.Status = model.OutboxStatusFailed })
}
