package inject

import (
	"context"

	"go.viam.com/bevdet/publish"
)

// Publisher is an injected publisher.
type Publisher struct {
	publish.Publisher
	PublishFunc func(ctx context.Context, res *publish.Result) error
	CloseFunc   func(ctx context.Context) error
}

// NewPublisher returns a new injected publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish calls the injected Publish or the real version.
func (p *Publisher) Publish(ctx context.Context, res *publish.Result) error {
	if p.PublishFunc == nil {
		return p.Publisher.Publish(ctx, res)
	}
	return p.PublishFunc(ctx, res)
}

// Close calls the injected Close or the real version.
func (p *Publisher) Close(ctx context.Context) error {
	if p.CloseFunc == nil {
		if p.Publisher == nil {
			return nil
		}
		return p.Publisher.Close(ctx)
	}
	return p.CloseFunc(ctx)
}
