package service

import (
	"context"
	"fmt"
	"time"

	"storefront-service/model"
	"storefront-service/store"
)

// Cards manages the pre-loaded inventory of delivery secrets: provisioning,
// the administrative lock/unlock pool controls, and reading a dispensed
// card's content back out of the vault.
type Cards struct {
	store store.Store
	vault *Vault
}

func NewCards(st store.Store, vault *Vault) *Cards {
	return &Cards{store: st, vault: vault}
}

func (s *Cards) Create(ctx context.Context, productID uint, content string, expiresAt *time.Time) (*model.Card, error) {
	cards, err := s.BatchCreate(ctx, productID, []string{content}, expiresAt)
	if err != nil {
		return nil, err
	}
	return cards[0], nil
}

// BatchCreate encrypts and stores one card per content string. All cards are
// created in one transaction; a bad product id fails the whole batch.
func (s *Cards) BatchCreate(ctx context.Context, productID uint, contents []string, expiresAt *time.Time) ([]*model.Card, error) {
	var out []*model.Card
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Products().Get(ctx, productID); err != nil {
			return err
		}
		for _, content := range contents {
			secret, err := s.vault.NewCardSecret()
			if err != nil {
				return err
			}
			encrypted, err := s.vault.Encrypt(content, secret)
			if err != nil {
				return err
			}
			card := &model.Card{
				ProductID:        productID,
				EncryptedContent: encrypted,
				CardSecret:       secret,
				Status:           model.CardUnused,
				ExpiresAt:        expiresAt,
			}
			if err := tx.Cards().Create(ctx, card); err != nil {
				return err
			}
			out = append(out, card)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Cards) Get(ctx context.Context, id uint) (*model.Card, error) {
	card, err := s.store.Cards().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// An unused card past its deadline is reported expired even before the
	// row is physically updated.
	if card.Status == model.CardUnused && card.ExpiredAt(time.Now()) {
		card.Status = model.CardExpired
	}
	return card, nil
}

func (s *Cards) List(ctx context.Context, productID uint, status model.CardStatus) ([]*model.Card, error) {
	cards, err := s.store.Cards().List(ctx, productID, status)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, c := range cards {
		if c.Status == model.CardUnused && c.ExpiredAt(now) {
			c.Status = model.CardExpired
		}
	}
	return cards, nil
}

func (s *Cards) CountAvailable(ctx context.Context, productID uint) (int, error) {
	return s.store.Cards().CountAvailable(ctx, productID, time.Now())
}

// Content decrypts a card's secret. Only used cards may be read; content of
// a card that is not yet bound to a buyer never leaves the vault.
func (s *Cards) Content(ctx context.Context, id uint) (string, error) {
	card, err := s.store.Cards().Get(ctx, id)
	if err != nil {
		return "", err
	}
	if card.Status != model.CardUsed {
		return "", fmt.Errorf("card %d: %w", id, store.ErrCardNotUsed)
	}
	return s.vault.Decrypt(card.EncryptedContent, card.CardSecret)
}

// Lock pulls an unused card out of the allocation pool without deleting it.
func (s *Cards) Lock(ctx context.Context, id uint) (*model.Card, error) {
	return s.setStatus(ctx, id, model.CardUnused, model.CardLocked)
}

func (s *Cards) Unlock(ctx context.Context, id uint) (*model.Card, error) {
	return s.setStatus(ctx, id, model.CardLocked, model.CardUnused)
}

func (s *Cards) setStatus(ctx context.Context, id uint, from, to model.CardStatus) (*model.Card, error) {
	var card *model.Card
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		existing, err := tx.Cards().Get(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status != from {
			return fmt.Errorf("card %d is %s: %w", id, existing.Status, store.ErrInvalidTransition)
		}
		if err := tx.Cards().SetStatus(ctx, id, from, to); err != nil {
			return err
		}
		card, err = tx.Cards().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// Delete removes a card from inventory. Used cards are part of a completed
// order's audit trail and can never be deleted.
func (s *Cards) Delete(ctx context.Context, id uint) error {
	return s.store.InTx(ctx, func(tx store.Tx) error {
		card, err := tx.Cards().Get(ctx, id)
		if err != nil {
			return err
		}
		if card.Status == model.CardUsed {
			return fmt.Errorf("card %d already dispensed: %w", id, store.ErrInvalidTransition)
		}
		return tx.Cards().Delete(ctx, id)
	})
}
