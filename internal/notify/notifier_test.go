package notify

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewSMTPNotifierValidation(t *testing.T) {
	if _, err := NewSMTPNotifier(SMTPOptions{From: "alerts@example.com"}, zerolog.Nop()); err == nil {
		t.Fatal("缺少 host 时应报错")
	}
	if _, err := NewSMTPNotifier(SMTPOptions{Host: "mail.example.com"}, zerolog.Nop()); err == nil {
		t.Fatal("缺少 from 时应报错")
	}

	n, err := NewSMTPNotifier(SMTPOptions{
		Host:    "mail.example.com",
		Port:    587,
		From:    "alerts@example.com",
		Timeout: time.Second,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("完整配置不应报错: %v", err)
	}
	if n == nil {
		t.Fatal("notifier 不应为 nil")
	}
}

func TestNotifyRejectsEmptyRecipient(t *testing.T) {
	n, err := NewSMTPNotifier(SMTPOptions{
		Host: "mail.example.com",
		From: "alerts@example.com",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}

	if err := n.Notify(context.Background(), Message{Subject: "s", Body: "b"}); err == nil {
		t.Fatal("空收件人应报错")
	}
}
