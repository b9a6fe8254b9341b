// Package external provides the anti-corruption layer between notekeeper
// domain logic and third-party services: outbound email delivery and identity
// provider profile normalization. Domain code depends only on the interfaces
// here; vendor SDK types never cross the boundary.
package external

import (
	"context"

	"notekeeper/internal/types"
)

// EmailProvider abstracts the outbound email delivery service.
// Implementations transmit pre-rendered content (Subject, BodyHTML, BodyText)
// and return the provider's message id for correlation.
//
// Error contract: transport-level failures return AppErrors with upstream_*
// codes and are retryable; email_blocked means the address is rejected
// permanently and retrying cannot help.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}
