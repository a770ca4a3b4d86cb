package notify

import (
	"fmt"
	"time"
)

// SubjectSubscriptionExpiring is stable so the expiry check can find
// earlier reminders in the notification log.
const SubjectSubscriptionExpiring = "Reminder: subscription expiring soon"

func CheckoutSucceeded(planName string) Message {
	return Message{
		Subject: "Subscription activated",
		Body: fmt.Sprintf("Thank you for your order. Your %s subscription is now active.\n"+
			"If your plan includes a server, we will let you know as soon as it is ready.", planName),
	}
}

func SubscriptionCanceled(planName string) Message {
	return Message{
		Subject: "Subscription canceled",
		Body: fmt.Sprintf("Your %s subscription has ended and your account was moved to the free tier.\n"+
			"You can subscribe again at any time.", planName),
	}
}

func PaymentFailed(amount string) Message {
	return Message{
		Subject: "Payment failed",
		Body: fmt.Sprintf("We could not collect your payment of %s.\n"+
			"Please update your payment method to keep your subscription active.", amount),
	}
}

func ResourceReady(hostname, ip string) Message {
	return Message{
		Subject: "Your server is ready",
		Body:    fmt.Sprintf("Your server %s has been provisioned and is reachable at %s.", hostname, ip),
	}
}

func SubscriptionExpiring(planName string, periodEnd time.Time) Message {
	return Message{
		Subject: SubjectSubscriptionExpiring,
		Body: fmt.Sprintf("Your %s subscription is set to cancel and ends on %s.\n"+
			"Reactivate it from the billing portal to avoid interruption.", planName, periodEnd.UTC().Format("2006-01-02")),
	}
}

// Admin alerts

func ProvisioningFailed(jobID, orderID uint, provider, reason string) Message {
	return Message{
		Subject: fmt.Sprintf("Provisioning job %d failed", jobID),
		Body:    fmt.Sprintf("Job %d for order %d on provider %s failed: %s", jobID, orderID, provider, reason),
	}
}

func ProvisioningTimedOut(jobID, orderID uint, startedAt time.Time) Message {
	return Message{
		Subject: fmt.Sprintf("Provisioning job %d timed out", jobID),
		Body: fmt.Sprintf("Job %d for order %d has been provisioning since %s and was marked failed.",
			jobID, orderID, startedAt.UTC().Format(time.RFC3339)),
	}
}

func EventProcessingFailed(eventID, eventType, reason string) Message {
	return Message{
		Subject: fmt.Sprintf("Payment event %s failed", eventID),
		Body:    fmt.Sprintf("Processing %s (%s) failed after all retries: %s", eventID, eventType, reason),
	}
}
