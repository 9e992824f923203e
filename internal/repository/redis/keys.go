package redis

import "fmt"

const ns = "feisbook:v1"

func KeyEventList() string {
	return ns + ":events:list"
}

// KeyConfirmLock scopes the confirmation lock to one idempotency key.
func KeyConfirmLock(idemKey string) string {
	return fmt.Sprintf("%s:lock:confirm:%s", ns, idemKey)
}

func KeyIdemCheckout(clientKey string) string {
	return fmt.Sprintf("%s:idem:checkout:%s", ns, clientKey)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}
