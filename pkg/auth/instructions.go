package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCredentialGuide writes step-by-step instructions for creating the
// four OAuth1 user-context secrets in the developer portal
func ShowCredentialGuide(w io.Writer) {
	line := strings.Repeat("=", 80)
	p := func(format string, args ...interface{}) {
		fmt.Fprintf(w, format+"\n", args...)
	}

	p(line)
	p("📚 TIMELINE API CREDENTIAL GUIDE")
	p(line)
	p("")
	p("twarchive reads your home timeline with OAuth 1.0a user-context auth.")
	p("It needs four values, all issued by the developer portal:")
	p("")

	p("🌐 STEP 1: Open the developer portal")
	p("   - Go to https://developer.twitter.com and sign in")
	p("   - Create a project and an app if you do not have one")
	p("")

	p("🔧 STEP 2: Set app permissions")
	p("   - Under 'User authentication settings' enable OAuth 1.0a")
	p("   - Read access is enough; the archiver never writes")
	p("")

	p("🔑 STEP 3: Generate keys and tokens")
	p("   ┌──────────────────────┬────────────────────────────────────────┐")
	p("   │ Value                │ Where it lives                         │")
	p("   ├──────────────────────┼────────────────────────────────────────┤")
	p("   │ consumer key         │ Keys and tokens → API Key              │")
	p("   │ consumer secret      │ Keys and tokens → API Key Secret       │")
	p("   │ access token         │ Keys and tokens → Access Token         │")
	p("   │ access token secret  │ Keys and tokens → Access Token Secret  │")
	p("   └──────────────────────┴────────────────────────────────────────┘")
	p("")

	p("💡 TIPS:")
	p("   • The access token belongs to the account whose timeline is archived")
	p("   • Regenerating the tokens invalidates the stored ones")
	p("   • Variables TWARCHIVE_CONSUMER_KEY and friends override stored values")
	p("")

	p("⚠️  SECURITY WARNING:")
	p("   • These secrets act as your account for every read")
	p("   • NEVER commit them to a repository")
	p("   • 'twarchive auth login' stores them in the system keyring or an encrypted file")
	p("")
	p(line)
	p("")
}

// ShowQuickGuide writes a condensed version for experienced users
func ShowQuickGuide(w io.Writer) {
	fmt.Fprintln(w, "\n🔑 Quick Guide: developer portal → your app → Keys and tokens")
	fmt.Fprintln(w, "   Need: API Key, API Key Secret, Access Token, Access Token Secret")
	fmt.Fprintln(w, "   Type 'help' for detailed instructions")
}
