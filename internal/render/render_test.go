package render

import (
	"context"
	"strings"
	"testing"
)

func TestNumberedLists(t *testing.T) {
	r := NewTemplateRenderer("عيادة الشفاء", "920033304")
	out, err := r.Render(context.Background(), Prompt{
		Kind:  KindServiceList,
		Items: []string{"تنظيف الأسنان", "تبييض الأسنان"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "1. تنظيف الأسنان") || !strings.Contains(out, "2. تبييض الأسنان") {
		t.Fatalf("missing numbered items: %q", out)
	}
}

func TestBookingSummaryIncludesDetails(t *testing.T) {
	r := NewTemplateRenderer("عيادة الشفاء", "920033304")
	out, _ := r.Render(context.Background(), Prompt{
		Kind: KindBookingSummary,
		Details: map[string]string{
			"service": "تنظيف الأسنان",
			"price":   "200 ريال",
			"date":    "2026-09-01",
			"time":    "10:30",
		},
	})
	for _, want := range []string{"تنظيف الأسنان", "200 ريال", "2026-09-01", "10:30", "نعم"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q: %q", want, out)
		}
	}
}

func TestCatastrophicIncludesClinicPhone(t *testing.T) {
	r := NewTemplateRenderer("عيادة الشفاء", "")
	out, _ := r.Render(context.Background(), Prompt{Kind: KindCatastrophicError})
	if !strings.Contains(out, "920033304") {
		t.Fatalf("expected default clinic phone in %q", out)
	}
}

func TestEnglishFallsBackToArabic(t *testing.T) {
	r := NewTemplateRenderer("عيادة الشفاء", "920033304")
	out, _ := r.Render(context.Background(), Prompt{Kind: KindAskName, Lang: "en"})
	if out == "" {
		t.Fatal("expected non-empty fallback text")
	}
}
