package internal

import (
	"html/template"
	"io"

	"tutorpay/entity"
)

// bridgeRepeatDelayMs is the delay before the broadcast is repeated, to
// tolerate a listener that was not yet attached at first broadcast.
const bridgeRepeatDelayMs = 500

// The bank's challenge page loads this document in a browsing context nested
// at unknown depth relative to the application shell. Its sole behavior is a
// best-effort broadcast of the fixed completion signal to every reachable
// ancestor context, swallowing per-target cross-origin access errors.
var bridgeTemplate = template.Must(template.New("bridge").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Authentication complete</title>
</head>
<body>
<p>Authentication complete. You can close this window.</p>
<script>
(function () {
	var signal = "{{.Signal}}";
	function notify(target) {
		try {
			if (target && target.postMessage) {
				target.postMessage(signal, "*");
			}
		} catch (e) {
			// cross-origin ancestors are expected, keep going
		}
	}
	function broadcast() {
		notify(window.opener);
		notify(window.top);
		notify(window.parent);
	}
	broadcast();
	setTimeout(broadcast, {{.RepeatDelayMs}});
})();
</script>
</body>
</html>
`))

// WriteBridgeDocument renders the challenge bridge page.
func WriteBridgeDocument(w io.Writer) error {
	return bridgeTemplate.Execute(w, struct {
		Signal        string
		RepeatDelayMs int
	}{
		Signal:        entity.ChallengeCompleteSignal,
		RepeatDelayMs: bridgeRepeatDelayMs,
	})
}
