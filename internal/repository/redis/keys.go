package redis

import "fmt"

const ns = "eventhub:v1"

func KeyEvent(eventID string) string {
	return fmt.Sprintf("%s:event:%s", ns, eventID)
}

func KeyCheckout(checkoutID string) string {
	return fmt.Sprintf("%s:checkout:%s", ns, checkoutID)
}

// KeyCheckoutLock guards one in-flight action (promo, submit) per checkout.
func KeyCheckoutLock(checkoutID, action string) string {
	return fmt.Sprintf("%s:checkout:%s:lock:%s", ns, checkoutID, action)
}

func KeySession(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", ns, sessionID)
}

func KeyRateLimitPrefix(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}
