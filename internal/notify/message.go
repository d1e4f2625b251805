package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"billsync/internal/recon"
	"billsync/pkg/models"
)

// formatAmount renders minor units as a pt-BR currency string.
func formatAmount(cents int64) string {
	units := decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
	return strings.ReplaceAll(units.StringFixed(2), ".", ",")
}

// chatMessage composes the chat reminder for the given variant.
func chatMessage(rec models.InvoiceRecord, kind recon.ReminderKind, overdueDays int) string {
	amount := formatAmount(rec.AmountCents)

	var b strings.Builder
	switch kind {
	case recon.ReminderUpcoming:
		b.WriteString("🚨 *LEMBRETE DE PAGAMENTO* 🚨\n\n")
		fmt.Fprintf(&b, "Olá %s!\n\n", rec.DebtorName)
		fmt.Fprintf(&b, "Seu boleto de R$ %s vence em 2 dias!\n\n", amount)
	case recon.ReminderDueToday:
		b.WriteString("🚨 *PAGAMENTO VENCE HOJE* 🚨\n\n")
		fmt.Fprintf(&b, "Olá %s!\n\n", rec.DebtorName)
		fmt.Fprintf(&b, "Seu boleto de R$ %s vence HOJE!\n\n", amount)
	default:
		b.WriteString("⚠️ *PAGAMENTO EM ATRASO* ⚠️\n\n")
		fmt.Fprintf(&b, "Olá %s!\n\n", rec.DebtorName)
		fmt.Fprintf(&b, "Seu boleto de R$ %s está em atraso há %d dias.\n\n", amount, overdueDays)
	}

	if rec.PaymentLink != "" {
		fmt.Fprintf(&b, "💳 *Link do Boleto:*\n%s\n\n", rec.PaymentLink)
	}
	if rec.PaymentCode != "" {
		fmt.Fprintf(&b, "📱 *PIX Copia e Cola:*\n%s\n\n", rec.PaymentCode)
	}

	switch kind {
	case recon.ReminderDueToday:
		b.WriteString("Por favor, efetue o pagamento hoje para evitar juros e multa.\n\n")
	case recon.ReminderOverdue:
		b.WriteString("Por favor, efetue o pagamento o quanto antes para evitar juros e multa.\n\nCaso já tenha pago, desconsidere esta mensagem.\n\n")
	default:
		b.WriteString("Por favor, efetue o pagamento para manter seu acesso ativo.\n\n")
	}
	b.WriteString("_Mensagem automática_")

	return b.String()
}

// emailMessage composes the subject and HTML body for the given
// variant.
func emailMessage(rec models.InvoiceRecord, kind recon.ReminderKind, overdueDays int) (subject, html string) {
	amount := formatAmount(rec.AmountCents)

	var status string
	switch kind {
	case recon.ReminderUpcoming:
		status = "vence em 2 dias"
	case recon.ReminderDueToday:
		status = "vence hoje"
	default:
		status = fmt.Sprintf("está em atraso há %d dias", overdueDays)
	}

	subject = "🚨 Lembrete: Pagamento " + statusShort(kind)
	html = fmt.Sprintf(
		"<h2>🚨 LEMBRETE DE PAGAMENTO</h2><p>Olá <strong>%s</strong>!</p><p>Seu boleto de <strong>R$ %s</strong> %s.</p>",
		rec.DebtorName, amount, status)
	if rec.PaymentLink != "" {
		html += fmt.Sprintf(`<p><a href="%s">Link do boleto</a></p>`, rec.PaymentLink)
	}
	return subject, html
}

func statusShort(kind recon.ReminderKind) string {
	switch kind {
	case recon.ReminderUpcoming:
		return "vence em breve"
	case recon.ReminderDueToday:
		return "vence hoje"
	}
	return "em atraso"
}
