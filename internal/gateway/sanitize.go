package gateway

import "regexp"

// Executable sub-content is neutralized before the pipeline ever sees the
// input. The pipeline treats the payload as inert text, but the corrected
// output is rendered by clients, so scripts are stripped at the door.
var (
	reScript = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	reIframe = regexp.MustCompile(`(?is)<iframe\b.*?</iframe>`)
)

func sanitizeUserCode(code string) string {
	code = reScript.ReplaceAllString(code, "<!-- script removed -->")
	code = reIframe.ReplaceAllString(code, "<!-- iframe removed -->")
	return code
}
