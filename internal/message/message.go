// Package message repairs raw SMS text and tells monetary messages apart
// from OTPs, declines and promotions.
package message

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"github.com/jask/smsledger/internal/models"
)

var (
	otpWords      = regexp.MustCompile(`(?i)\b(?:otp|one\s*time\s*password|code)\b`)
	declinedWords = regexp.MustCompile(`(?i)\b(?:declined|refused)\b`)
	promoWords    = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoteAll(promoEnglish), "|") + `)\b`)
)

var otpArabic = []string{"رمز التحقق", "كلمة المرور", "تسجيل الدخول"}

var declinedArabic = []string{"مرفوضة", "تم رفض"}

var promoEnglish = []string{
	"special offer", "limited time", "offer", "discount", "sale", "enjoy",
	"promotion", "promo", "deals", "deal", "saving", "save", "cashback",
	"rewards", "reward", "exclusive", "free", "gift", "bonus", "winner", "win",
	"congratulations", "congrats", "voucher", "coupon", "redeem",
}

// "خصم" is left out: it means debit as often as discount.
var promoArabic = []string{
	"عرض خاص", "لفترة محدودة", "عروض", "توفير", "مجاني", "هدية", "مكافأة",
	"مكافآت", "حصري", "خصومات", "استمتع", "تخفيض", "تخفيضات", "كاش باك",
	"قسيمة", "كوبون", "مبروك", "فائز", "اربح", "جائزة", "وفر الآن",
	"احصل على", "فرصة",
}

func quoteAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return out
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// Repair undoes UTF-8 text that was decoded as Windows-1252, drops invalid
// bytes, composes to NFC and trims. It reports whether anything changed.
func Repair(text string) (string, bool) {
	cleaned := strings.ToValidUTF8(text, "")
	cleaned = undoMojibake(cleaned)
	cleaned = strings.TrimSpace(norm.NFC.String(cleaned))
	return cleaned, cleaned != text
}

// undoMojibake returns s re-read as UTF-8 when every rune of s maps back to
// a Windows-1252 byte and those bytes form valid UTF-8.
func undoMojibake(s string) string {
	if isASCII(s) {
		return s
	}
	raw := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := sloppyByte(r)
		if !ok {
			return s
		}
		raw = append(raw, b)
	}
	if !utf8.Valid(raw) {
		return s
	}
	return string(raw)
}

// sloppyByte encodes r as Windows-1252, with C1 controls standing in for
// the bytes the code page leaves undefined.
func sloppyByte(r rune) (byte, bool) {
	if r >= 0x80 && r <= 0x9f {
		return byte(r), true
	}
	return charmap.Windows1252.EncodeRune(r)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// IsPromotional reports whether text carries marketing keywords.
func IsPromotional(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return promoWords.MatchString(text) || containsAny(text, promoArabic)
}

// Classify assigns a state to a message. OTPs win over declines, declines
// over promotions, and anything left is monetary only when an amount was
// extracted.
func Classify(text string, hasAmount bool) models.TransactionState {
	switch {
	case otpWords.MatchString(text) || containsAny(text, otpArabic):
		return models.StateOTP
	case declinedWords.MatchString(text) || containsAny(text, declinedArabic):
		return models.StateDeclined
	case IsPromotional(text):
		return models.StatePromo
	case !hasAmount:
		return models.StateUnknown
	default:
		return models.StateMonetary
	}
}
