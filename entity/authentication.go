package entity

// AuthenticationOutcome is the result of the bank's 3DS challenge, derived
// from the transactionStatus code the gateway reports on the order resource.
type AuthenticationOutcome string

const (
	OutcomeNotRequired AuthenticationOutcome = "not_required"
	OutcomeSuccessful  AuthenticationOutcome = "successful"
	OutcomeFailed      AuthenticationOutcome = "failed"
	OutcomeUnavailable AuthenticationOutcome = "unavailable"
)

// TransactionStatusSuccess is the transactionStatus code that marks a payer
// authentication as successful. Only this outcome may be linked into a
// capture request.
const TransactionStatusSuccess = "Y"

// OutcomeFromStatus maps a 3DS transactionStatus code to an outcome.
func OutcomeFromStatus(status string) AuthenticationOutcome {
	switch status {
	case TransactionStatusSuccess:
		return OutcomeSuccessful
	case "N", "R":
		return OutcomeFailed
	case "U":
		return OutcomeUnavailable
	case "":
		return OutcomeNotRequired
	default:
		return OutcomeUnavailable
	}
}
