package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context. Bearer requests carry
// no session and get nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// FlashFromContext pops the pending flash message of the request session.
func FlashFromContext(ctx context.Context) *FlashMessage {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return nil
	}
	return sess.PopFlash()
}

// AddFlash queues a flash message on the request session, if any.
func AddFlash(ctx context.Context, kind, message string) {
	if sess := SessionFromContext(ctx); sess != nil {
		sess.AddFlash(FlashMessage{Kind: kind, Message: message})
	}
}
