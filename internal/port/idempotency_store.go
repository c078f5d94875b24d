package port

import "context"

type IdempotencyStore interface {
	// Claim atomically takes ownership of an idempotency key. When the key is
	// already held, claimed is false and orderID carries the bound order ID,
	// or "" if the original request is still in flight.
	Claim(ctx context.Context, key string) (claimed bool, orderID string, err error)

	// Bind records the order created under a claimed key.
	Bind(ctx context.Context, key, orderID string) error

	// Forget drops a claimed key so a retry can proceed after a failure.
	Forget(ctx context.Context, key string) error
}
