package scrape

import "strings"

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
	BlockLoginWall  BlockType = "login_wall"
)

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
}

// DetectBlock inspects reader output for anti-bot pages and login walls.
// Only short pages are considered; a full profile page that happens to
// mention a marker is not a block.
func DetectBlock(statusCode int, content string) BlockType {
	if statusCode == 403 || statusCode == 503 {
		if strings.Contains(strings.ToLower(content), "cloudflare") {
			return BlockCloudflare
		}
	}

	lower := strings.ToLower(content)
	if len(content) >= 2000 {
		return BlockNone
	}

	if strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return BlockCloudflare
	}
	if strings.Contains(lower, "captcha") {
		return BlockCaptcha
	}
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) {
			return BlockJSShell
		}
	}
	if strings.Contains(lower, "log in to instagram") ||
		strings.Contains(lower, "login • instagram") {
		return BlockLoginWall
	}
	return BlockNone
}
