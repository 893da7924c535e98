package render

import (
	"context"
	"fmt"
	"strings"
)

// TemplateRenderer renders Arabic-first canned messages. English copies are
// provided for staff-facing test channels; patient traffic is Arabic.
type TemplateRenderer struct {
	ClinicName  string
	ClinicPhone string
}

// NewTemplateRenderer returns a renderer wired to the clinic identity shown
// in escalation messages.
func NewTemplateRenderer(clinicName, clinicPhone string) *TemplateRenderer {
	if clinicPhone == "" {
		clinicPhone = "920033304"
	}
	return &TemplateRenderer{ClinicName: clinicName, ClinicPhone: clinicPhone}
}

func (r *TemplateRenderer) Render(_ context.Context, p Prompt) (string, error) {
	if p.Lang == "en" {
		return r.renderEnglish(p), nil
	}
	return r.renderArabic(p), nil
}

func (r *TemplateRenderer) renderArabic(p Prompt) string {
	switch p.Kind {
	case KindAskService:
		if p.Name != "" {
			return fmt.Sprintf("أهلاً %s! كيف أقدر أساعدك اليوم؟ تحب تحجز موعد؟", p.Name)
		}
		return "أهلاً بك! كيف أقدر أساعدك اليوم؟ تحب تحجز موعد؟"
	case KindWelcomeBack:
		return fmt.Sprintf("أهلاً بعودتك %s! تحب تحجز موعد جديد؟", p.Name)
	case KindAskRegistration:
		return "يبدو أنك غير مسجل لدينا. تحب نسجلك الآن؟ التسجيل يأخذ أقل من دقيقة. (نعم / لا)"
	case KindAskName:
		return "ممتاز! عشان نسجلك، أرسل لنا اسمك الثلاثي بالعربي من فضلك."
	case KindAskNationalID:
		return fmt.Sprintf("شكراً %s! الآن أرسل رقم الهوية الوطنية أو الإقامة (10 أرقام تبدأ بـ 1 أو 2).", p.Name)
	case KindInvalidName:
		msg := "عذراً، الاسم غير صحيح."
		if p.Reason != "" {
			msg += " " + p.Reason
		}
		return msg + " أرسل اسمك الثلاثي بالعربي من فضلك."
	case KindInvalidNationalID:
		msg := "عذراً، رقم الهوية غير صحيح."
		if p.Reason != "" {
			msg += " " + p.Reason
		}
		return msg + " الرقم يتكون من 10 أرقام ويبدأ بـ 1 أو 2."
	case KindRegistrationDone:
		return fmt.Sprintf("تم تسجيلك بنجاح %s! 🎉 الآن نقدر نحجز لك موعد.", p.Name)
	case KindRegistrationError:
		return "عذراً، واجهتنا مشكلة في التسجيل. حاول مرة ثانية من فضلك."
	case KindServiceTypeList:
		return numberedList("هذه أقسام الخدمات المتوفرة، اختر القسم بإرسال رقمه:", p.Items)
	case KindServiceList:
		return numberedList("هذه الخدمات المتوفرة، اختر الخدمة بإرسال رقمها:", p.Items)
	case KindDoctorList:
		return numberedList("هؤلاء الأطباء المتوفرون، اختر الطبيب بإرسال رقمه:", p.Items)
	case KindSpecialistList:
		return numberedList("هؤلاء الأخصائيون المتوفرون، اختر الأخصائي بإرسال رقمه:", p.Items)
	case KindDeviceList:
		return numberedList("هذه الأجهزة المتوفرة، اختر الجهاز بإرسال رقمه:", p.Items)
	case KindSlotList:
		return numberedList("هذه المواعيد المتاحة، اختر الموعد بإرسال رقمه:", p.Items)
	case KindNoSlots:
		return "عذراً، لا توجد مواعيد متاحة حالياً لهذه الخدمة. جرب خدمة أخرى أو تواصل معنا لاحقاً."
	case KindBookingSummary:
		return r.bookingSummaryAr(p.Details)
	case KindBookingSuccess:
		msg := "تم تأكيد حجزك بنجاح! 🎉"
		if code := p.Details["confirmation_code"]; code != "" {
			msg += fmt.Sprintf("\nرقم التأكيد: %s", code)
		}
		if date := p.Details["date"]; date != "" {
			msg += fmt.Sprintf("\nالتاريخ: %s الساعة %s", date, p.Details["time"])
		}
		return msg + "\nنتشرف بزيارتك! 🌸"
	case KindCancelled:
		return "تم إلغاء العملية. إذا حبيت تحجز في أي وقت، أرسل لنا رسالة. 🌸"
	case KindLoopHelp:
		return "يبدو أن هناك سوء فهم. تقدر تختار من القائمة بإرسال الرقم، أو ترسل \"إلغاء\" للبدء من جديد."
	case KindErrorRecovery:
		return "عذراً، حصل خطأ بسيط. خلينا نبدأ من جديد، كيف أقدر أساعدك؟"
	case KindCatastrophicError:
		return fmt.Sprintf("نعتذر عن المشكلة التقنية. فريقنا سيتواصل معك، أو تقدر تتصل بنا مباشرة على %s. 🙏", r.ClinicPhone)
	case KindBusy:
		return fmt.Sprintf("النظام مشغول حالياً، حاول بعد قليل أو اتصل بنا على %s.", r.ClinicPhone)
	case KindSelectionNotFound:
		return "عذراً، ما قدرت أحدد اختيارك. أرسل رقم الخيار من القائمة من فضلك."
	case KindValidationFailed:
		msg := "عذراً، في معلومة ناقصة لإتمام الحجز."
		if p.Reason != "" {
			msg += " " + p.Reason
		}
		return msg + " خلينا نحاول من جديد."
	case KindServiceUnavailable:
		return "عذراً، هذه الخدمة غير متوفرة حالياً. اختر خدمة أخرى من فضلك."
	case KindFallback:
		return fmt.Sprintf("عذراً، ما فهمت طلبك. تقدر تحجز موعد معنا أو تتصل على %s.", r.ClinicPhone)
	}
	return fmt.Sprintf("عذراً، حصل خطأ. تواصل معنا على %s.", r.ClinicPhone)
}

func (r *TemplateRenderer) renderEnglish(p Prompt) string {
	switch p.Kind {
	case KindAskService:
		return "Hello! How can I help you today? Would you like to book an appointment?"
	case KindNoSlots:
		return "Sorry, no appointments are available for this service right now."
	case KindCancelled:
		return "The process has been cancelled. Message us any time to book."
	case KindCatastrophicError:
		return fmt.Sprintf("We are sorry for the technical issue. Our team will contact you, or call us at %s.", r.ClinicPhone)
	case KindBusy:
		return fmt.Sprintf("The system is busy right now, please try again shortly or call us at %s.", r.ClinicPhone)
	}
	// English coverage is intentionally thin, Arabic is the wire language.
	return r.renderArabic(p)
}

func (r *TemplateRenderer) bookingSummaryAr(d map[string]string) string {
	var b strings.Builder
	b.WriteString("تأكيد الحجز 📋\n")
	if v := d["service"]; v != "" {
		fmt.Fprintf(&b, "الخدمة: %s\n", v)
	}
	if v := d["price"]; v != "" {
		fmt.Fprintf(&b, "السعر: %s\n", v)
	}
	if v := d["resource"]; v != "" {
		fmt.Fprintf(&b, "مع: %s\n", v)
	}
	if v := d["date"]; v != "" {
		fmt.Fprintf(&b, "التاريخ: %s\n", v)
	}
	if v := d["time"]; v != "" {
		fmt.Fprintf(&b, "الوقت: %s\n", v)
	}
	b.WriteString("هل تأكد الحجز؟ (نعم / لا)")
	return b.String()
}

func numberedList(header string, items []string) string {
	var b strings.Builder
	b.WriteString(header)
	for i, it := range items {
		fmt.Fprintf(&b, "\n%d. %s", i+1, it)
	}
	return b.String()
}
