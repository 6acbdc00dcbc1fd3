package firestore

import (
	"context"
	"errors"

	"google.golang.org/api/iterator"

	pfs "github.com/marigold-store/api/internal/platform/firestore"
	"github.com/marigold-store/api/internal/repositories"
)

const paymentConfigCollection = "payment_config"

type paymentConfigDoc struct {
	PaymentMethod string `firestore:"payment_method"`
	IsEnabled     bool   `firestore:"is_enabled"`
	IsPrimary     bool   `firestore:"is_primary"`
}

// GatewayConfigRepository implements repositories.GatewayConfigRepository on
// the payment_config collection.
type GatewayConfigRepository struct {
	provider *pfs.Provider
	fallback string
}

// NewGatewayConfigRepository constructs the repository. fallback is returned
// when no enabled primary gateway row exists.
func NewGatewayConfigRepository(provider *pfs.Provider, fallback string) *GatewayConfigRepository {
	return &GatewayConfigRepository{provider: provider, fallback: fallback}
}

var _ repositories.GatewayConfigRepository = (*GatewayConfigRepository)(nil)

// ActivePaymentMethod implements repositories.GatewayConfigRepository.
func (r *GatewayConfigRepository) ActivePaymentMethod(ctx context.Context) (string, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return "", err
	}

	iter := client.Collection(paymentConfigCollection).
		Where("is_enabled", "==", true).
		Where("is_primary", "==", true).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return r.fallback, nil
	}
	if err != nil {
		return "", pfs.WrapError("payment_config.query", err)
	}
	var doc paymentConfigDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", pfs.WrapError("payment_config.decode", err)
	}
	if doc.PaymentMethod == "" {
		return r.fallback, nil
	}
	return doc.PaymentMethod, nil
}
