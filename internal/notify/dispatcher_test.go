package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billsync/internal/recon"
	"billsync/pkg/models"
)

type fakeChat struct {
	sent []string
	err  error
}

func (f *fakeChat) Send(_ context.Context, phone, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, phone+"|"+message)
	return nil
}

type fakeEmail struct {
	to       []string
	subjects []string
	bodies   []string
	err      error
}

func (f *fakeEmail) Send(_ context.Context, to, subject, html string) error {
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, html)
	return nil
}

func reminderRecord() models.InvoiceRecord {
	return models.InvoiceRecord{
		DebtorName:  "Maria Souza",
		Email:       "maria@example.com",
		Phone:       "+5511987654321",
		AmountCents: 19990,
		PaymentLink: "https://pay.example/abc",
		PaymentCode: "000201pix",
	}
}

func TestSendReminderBothChannels(t *testing.T) {
	chat := &fakeChat{}
	email := &fakeEmail{}
	d := NewDispatcher(chat, email)

	res := d.SendReminder(context.Background(), reminderRecord(), recon.ReminderOverdue, 3)
	assert.True(t, res.ChatSent)
	assert.True(t, res.EmailSent)
	assert.True(t, res.Delivered())

	require.Len(t, chat.sent, 1)
	assert.Contains(t, chat.sent[0], "+5511987654321")
	assert.Contains(t, chat.sent[0], "3 dias")
	assert.Contains(t, chat.sent[0], "R$ 199,90")
	assert.Contains(t, chat.sent[0], "https://pay.example/abc")

	require.Len(t, email.to, 1)
	assert.Equal(t, "maria@example.com", email.to[0])
	assert.Contains(t, email.bodies[0], "199,90")
}

func TestSendReminderNoPhoneSkipsChat(t *testing.T) {
	chat := &fakeChat{}
	email := &fakeEmail{}
	d := NewDispatcher(chat, email)

	rec := reminderRecord()
	rec.Phone = ""

	res := d.SendReminder(context.Background(), rec, recon.ReminderDueToday, 0)
	assert.False(t, res.ChatSent)
	assert.True(t, res.EmailSent)
	assert.True(t, res.Delivered())
	assert.Empty(t, chat.sent)
}

func TestSendReminderChannelFailuresIndependent(t *testing.T) {
	chat := &fakeChat{err: errors.New("chat down")}
	email := &fakeEmail{}
	d := NewDispatcher(chat, email)

	res := d.SendReminder(context.Background(), reminderRecord(), recon.ReminderUpcoming, 0)
	assert.False(t, res.ChatSent)
	assert.True(t, res.EmailSent)
	assert.True(t, res.Delivered())

	// Both channels down: nothing delivered.
	d = NewDispatcher(&fakeChat{err: errors.New("down")}, &fakeEmail{err: errors.New("down")})
	res = d.SendReminder(context.Background(), reminderRecord(), recon.ReminderUpcoming, 0)
	assert.False(t, res.Delivered())
}

func TestReminderMessageVariants(t *testing.T) {
	rec := reminderRecord()

	up := chatMessage(rec, recon.ReminderUpcoming, 0)
	assert.Contains(t, up, "vence em 2 dias")

	today := chatMessage(rec, recon.ReminderDueToday, 0)
	assert.Contains(t, today, "vence HOJE")

	over := chatMessage(rec, recon.ReminderOverdue, 7)
	assert.Contains(t, over, "atraso há 7 dias")
	assert.Contains(t, over, "desconsidere")
}

func TestReminderMessageOmitsMissingPayment(t *testing.T) {
	rec := reminderRecord()
	rec.PaymentLink = ""
	rec.PaymentCode = ""

	msg := chatMessage(rec, recon.ReminderDueToday, 0)
	assert.NotContains(t, msg, "Link do Boleto")
	assert.NotContains(t, msg, "PIX Copia e Cola")
}

func TestSendReport(t *testing.T) {
	email := &fakeEmail{}
	d := NewDispatcher(nil, email)

	err := d.SendReport(context.Background(), "ops@example.com", ReportStats{
		Processed: 12,
		ChatSent:  8,
		EmailSent: 11,
		Errors:    1,
		NoPhone:   []string{"João Silva", "Ana Lima"},
	})
	require.NoError(t, err)

	require.Len(t, email.to, 1)
	assert.Equal(t, "ops@example.com", email.to[0])
	assert.Contains(t, email.bodies[0], "João Silva")
	assert.Contains(t, email.bodies[0], "Ana Lima")
	assert.Contains(t, email.subjects[0], "12 processadas")
}

func TestSendReportNoRecipient(t *testing.T) {
	email := &fakeEmail{}
	d := NewDispatcher(nil, email)

	require.NoError(t, d.SendReport(context.Background(), "", ReportStats{Processed: 5}))
	assert.Empty(t, email.to)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "199,90", formatAmount(19990))
	assert.Equal(t, "0,05", formatAmount(5))
	assert.Equal(t, "1500,00", formatAmount(150000))
}
