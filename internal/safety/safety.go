// Package safety screens inbound text for high-risk content (violence,
// self-harm, abuse) before it ever reaches the generator. Blocked text is
// answered with a fixed emergency message and is never written into
// conversation memory.
package safety

import (
	"log/slog"
	"regexp"
	"strings"
)

// dangerKeywords flag content the bot must not mediate. Matched as
// word-prefix patterns, case-insensitive.
var dangerKeywords = []string{
	// physical violence
	"bater", "bateu", "batendo", "soco", "chute", "empurr", "agredir", "agrediu",
	"machuc", "ferido", "sangr", "roxo", "hematoma",

	// threats and fear
	"ameaça", "ameaçou", "com medo", "assustado", "assustada",
	"polícia", "delegacia", "denúncia", "boletim de ocorrência",

	// suicide and self-harm
	"suicídio", "suicidar", "me matar", "matar-me", "acabar com tudo",
	"não aguento mais", "quero morrer", "vou me matar",
	"cortar os pulsos", "pular da ponte", "overdose",

	// abuse and coercion
	"abuso", "estupro", "forçou", "forçar", "obrigou", "obrigar",
	"não consigo sair", "me tranca", "me prende",

	// severe substance dependence
	"crack", "cocaína", "heroína", "viciado em",
}

// EmergencyMessage is the fixed, non-personalized reply for blocked content.
const EmergencyMessage = `⚠️ **Conteúdo Sensível Detectado**

Para sua segurança, não posso mediar essa situação.

Se você ou alguém está em perigo imediato:
🚨 **Ligue 190** (Polícia)
💜 **Ligue 180** (Central de Atendimento à Mulher)
🧠 **CVV 188** (Apoio emocional e prevenção ao suicídio)

Procure ajuda profissional especializada. Você não está sozinho(a).`

var dangerPatterns = compilePatterns()

func compilePatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(dangerKeywords))
	for _, kw := range dangerKeywords {
		patterns = append(patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)))
	}
	return patterns
}

// IsUnsafe reports whether text contains high-risk keywords.
func IsUnsafe(text string) bool {
	lower := strings.ToLower(text)
	for i, p := range dangerPatterns {
		if p.MatchString(lower) {
			slog.Warn("danger keyword detected",
				"keyword", dangerKeywords[i],
				"text_preview", preview(text, 50),
			)
			return true
		}
	}
	return false
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
