package entity

// ChallengeCompleteSignal is the fixed string broadcast by the 3DS callback
// document to every reachable ancestor browsing context, and matched by the
// checkout flow as the sole trigger to start polling the authentication
// result. The message origin cannot be constrained given arbitrary nesting,
// so no payload beyond this value is trusted.
const ChallengeCompleteSignal = "3ds-challenge-complete"
