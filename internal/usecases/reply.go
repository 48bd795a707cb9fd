package usecases

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"siteledger/internal/entities"
)

// messages is one language's reply catalog.
type messages struct {
	welcome        string
	chooseType     string
	askLocation    string
	askStartDate   string
	askBudget      string
	confirmTitle   string
	confirmFooter  string
	projectCreated string
	projectSkipped string
	projectFailed  string
	notProvided    string
	budgetUnread   string

	expenseLogged string
	remaining     string
	overBudget    string
	budgetWarning string
	noBudget      string
	taskCreated   string
	taskDue       string
	pendingTasks  string
	budgetSet     string
	budgetPrev    string
	spentSoFar    string
	summaryTitle  string
	summaryTotal  string
	summaryUsed   string
	summaryTop    string
	summaryEmpty  string
	imageLogged   string
	imageExpense  string

	help          string
	noProject     string
	invalidField  string
	malformed     string
	apology       string
	stateConflict string
	fields        map[string]string
}

var catalogs = map[string]messages{
	"en": {
		welcome:        "👋 *Welcome to %s!*\n\nLet's set up your project. What are you building?",
		chooseType:     "Please choose a project type by number or name:",
		askLocation:    "📍 Where is the project located?\n_Reply \"skip\" to leave it empty._",
		askStartDate:   "📅 When does the work start?\n_Reply \"skip\" to leave it empty._",
		askBudget:      "💰 What is the total budget? (e.g. 250jt, 50k, 2,500,000)\n_Reply \"skip\" to leave it empty._",
		confirmTitle:   "📋 *Please confirm your project:*",
		confirmFooter:  "Reply *yes* to create it, *edit* to start over or *skip* to finish without a project.",
		projectCreated: "✅ *Project created:* %s\n\nYou can now log expenses (\"spent 50k on cement\"), add tasks (\"task: order rebar\") or ask for a summary.",
		projectSkipped: "👍 Setup finished without creating a project. Send \"start\" whenever you are ready.",
		projectFailed:  "⚠️ I couldn't create the project just now. Reply *yes* to try again or *edit* to start over.",
		notProvided:    "-",
		budgetUnread:   "- (couldn't read \"%s\", no budget will be set)",

		expenseLogged: "✅ *Expense logged:* %s for %s (%s)",
		remaining:     "Remaining budget: %s",
		overBudget:    "🚨 Over budget by %s",
		budgetWarning: "⚠️ You have used %s of the budget.",
		noBudget:      "Total spent: %s. No budget set yet, send \"set budget 100jt\".",
		taskCreated:   "📝 *Task created:* %s (priority: %s)",
		taskDue:       "Due: %s",
		pendingTasks:  "Pending tasks: %d",
		budgetSet:     "💰 *Budget set to %s* for %s",
		budgetPrev:    "Previous budget: %s",
		spentSoFar:    "Spent so far: %s",
		summaryTitle:  "📊 *Spending summary: %s*",
		summaryTotal:  "Total spent: %s (%d expenses)",
		summaryUsed:   "Budget used: %s of %s",
		summaryTop:    "Top categories:",
		summaryEmpty:  "No expenses logged yet.",
		imageLogged:   "🖼️ *Photo saved* to %s (%d file(s)).",
		imageExpense:  "Expense recorded from the caption: %s for %s (%s)",

		help:          "🤖 *%s* can help you track your site:\n\n• *spent 50k on cement*: log an expense\n• *task: inspect foundation*: add a task\n• *set budget 200jt*: set the project budget\n• *summary*: see spending so far\n• send a photo of a receipt with the amount in the caption\n\nSend *start* to set up a new project.",
		noProject:     "📁 You don't have an active project yet. Send *start* to set one up first.",
		invalidField:  "❓ I need a valid %s for that. Please try again.",
		malformed:     "❓ I couldn't read the amount \"%s\". Try something like 50000, 50k or 1.5jt.",
		apology:       "😔 Sorry, something went wrong on our side. Please send that again in a moment.",
		stateConflict: "😔 Sorry, your messages crossed. Please send that again.",
		fields: map[string]string{
			"amount":       "amount",
			"description":  "description",
			"title":        "task title",
			"attachment":   "photo",
			"project_type": "project type",
			"location":     "location",
			"start_date":   "start date",
			"budget":       "budget",
			"text":         "answer",
		},
	},
	"id": {
		welcome:        "👋 *Selamat datang di %s!*\n\nMari siapkan proyek Anda. Apa yang sedang dibangun?",
		chooseType:     "Silakan pilih jenis proyek dengan nomor atau nama:",
		askLocation:    "📍 Di mana lokasi proyeknya?\n_Balas \"lewati\" untuk mengosongkan._",
		askStartDate:   "📅 Kapan pekerjaan dimulai?\n_Balas \"lewati\" untuk mengosongkan._",
		askBudget:      "💰 Berapa total anggarannya? (contoh: 250jt, 50rb, 2.500.000)\n_Balas \"lewati\" untuk mengosongkan._",
		confirmTitle:   "📋 *Mohon konfirmasi proyek Anda:*",
		confirmFooter:  "Balas *ya* untuk membuat, *ubah* untuk mengulang, atau *lewati* untuk selesai tanpa proyek.",
		projectCreated: "✅ *Proyek dibuat:* %s\n\nSekarang Anda bisa mencatat pengeluaran (\"keluar 50rb untuk semen\"), menambah tugas (\"tugas: pesan besi\") atau meminta laporan.",
		projectSkipped: "👍 Pengaturan selesai tanpa membuat proyek. Kirim \"mulai\" kapan saja.",
		projectFailed:  "⚠️ Proyek belum bisa dibuat. Balas *ya* untuk mencoba lagi atau *ubah* untuk mengulang.",
		notProvided:    "-",
		budgetUnread:   "- (\"%s\" tidak terbaca, anggaran tidak diisi)",

		expenseLogged: "✅ *Pengeluaran dicatat:* %s untuk %s (%s)",
		remaining:     "Sisa anggaran: %s",
		overBudget:    "🚨 Melebihi anggaran sebesar %s",
		budgetWarning: "⚠️ Anda sudah memakai %s dari anggaran.",
		noBudget:      "Total pengeluaran: %s. Anggaran belum diatur, kirim \"atur anggaran 100jt\".",
		taskCreated:   "📝 *Tugas dibuat:* %s (prioritas: %s)",
		taskDue:       "Tenggat: %s",
		pendingTasks:  "Tugas tertunda: %d",
		budgetSet:     "💰 *Anggaran diatur ke %s* untuk %s",
		budgetPrev:    "Anggaran sebelumnya: %s",
		spentSoFar:    "Sudah terpakai: %s",
		summaryTitle:  "📊 *Ringkasan pengeluaran: %s*",
		summaryTotal:  "Total pengeluaran: %s (%d transaksi)",
		summaryUsed:   "Anggaran terpakai: %s dari %s",
		summaryTop:    "Kategori terbesar:",
		summaryEmpty:  "Belum ada pengeluaran.",
		imageLogged:   "🖼️ *Foto disimpan* ke %s (%d file).",
		imageExpense:  "Pengeluaran dari keterangan foto: %s untuk %s (%s)",

		help:          "🤖 *%s* bisa membantu mencatat proyek Anda:\n\n• *keluar 50rb untuk semen*: catat pengeluaran\n• *tugas: cek pondasi*: tambah tugas\n• *atur anggaran 200jt*: atur anggaran proyek\n• *laporan*: lihat ringkasan pengeluaran\n• kirim foto nota dengan jumlah di keterangan\n\nKirim *mulai* untuk membuat proyek baru.",
		noProject:     "📁 Anda belum punya proyek aktif. Kirim *mulai* untuk membuatnya terlebih dahulu.",
		invalidField:  "❓ Saya perlu %s yang valid. Silakan coba lagi.",
		malformed:     "❓ Jumlah \"%s\" tidak bisa dibaca. Coba seperti 50000, 50rb atau 1,5jt.",
		apology:       "😔 Maaf, terjadi kesalahan di sistem kami. Silakan kirim ulang sebentar lagi.",
		stateConflict: "😔 Maaf, pesan Anda bersilangan. Silakan kirim ulang.",
		fields: map[string]string{
			"amount":       "jumlah",
			"description":  "keterangan",
			"title":        "judul tugas",
			"attachment":   "foto",
			"project_type": "jenis proyek",
			"location":     "lokasi",
			"start_date":   "tanggal mulai",
			"budget":       "anggaran",
			"text":         "jawaban",
		},
	},
}

// ReplyComposer renders results and prompts as chat text. It has no side
// effects.
type ReplyComposer struct {
	productName  string
	projectTypes []string
}

func NewReplyComposer(productName string, projectTypes []string) *ReplyComposer {
	return &ReplyComposer{productName: productName, projectTypes: projectTypes}
}

func (r *ReplyComposer) catalog(lang string) messages {
	if m, ok := catalogs[lang]; ok {
		return m
	}
	return catalogs["en"]
}

// FormatMoney renders an amount as "IDR 1,250,000".
func FormatMoney(currency string, amount int64) string {
	if currency == "" {
		currency = "IDR"
	}
	return currency + " " + humanize.Comma(amount)
}

// FormatPercent renders part/whole with one decimal, e.g. "42.5%".
func FormatPercent(part, whole int64) string {
	if whole <= 0 {
		return "0.0%"
	}
	return strconv.FormatFloat(float64(part)*100/float64(whole), 'f', 1, 64) + "%"
}

// Prompt renders an onboarding step. project is the created project for
// PromptProjectCreated and nil otherwise.
func (r *ReplyComposer) Prompt(lang, currency string, step Step, project *entities.Project) string {
	m := r.catalog(lang)
	switch step.Prompt {
	case PromptWelcome:
		return fmt.Sprintf(m.welcome, r.productName) + "\n\n" + r.choices()
	case PromptProjectType:
		return m.chooseType + "\n\n" + r.choices()
	case PromptLocation:
		return m.askLocation
	case PromptStartDate:
		return m.askStartDate
	case PromptBudget:
		return m.askBudget
	case PromptConfirmation:
		return r.confirmation(m, currency, step.Fields)
	case PromptProjectCreated:
		name := ""
		if project != nil {
			name = project.Name
		} else if step.Project != nil {
			name = step.Project.Name
		}
		return fmt.Sprintf(m.projectCreated, name)
	case PromptSkipped:
		return m.projectSkipped
	}
	return r.Help(lang)
}

// Choices is the project type list, used for transport keyboards.
func (r *ReplyComposer) Choices() []string {
	return r.projectTypes
}

func (r *ReplyComposer) choices() string {
	var sb strings.Builder
	for i, name := range r.projectTypes {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, name)
	}
	return sb.String()
}

func (r *ReplyComposer) confirmation(m messages, currency string, f entities.OnboardingFields) string {
	show := func(v *string) string {
		if v == nil || *v == "" {
			return m.notProvided
		}
		return *v
	}
	budget := m.notProvided
	switch {
	case f.Budget != nil:
		budget = FormatMoney(currency, *f.Budget)
	case f.BudgetText != nil && *f.BudgetText != "":
		budget = fmt.Sprintf(m.budgetUnread, *f.BudgetText)
	}

	var sb strings.Builder
	sb.WriteString(m.confirmTitle + "\n\n")
	fmt.Fprintf(&sb, "• %s: %s\n", m.fields["project_type"], show(f.ProjectType))
	fmt.Fprintf(&sb, "• %s: %s\n", m.fields["location"], show(f.Location))
	fmt.Fprintf(&sb, "• %s: %s\n", m.fields["start_date"], show(f.StartDate))
	fmt.Fprintf(&sb, "• %s: %s\n\n", m.fields["budget"], budget)
	sb.WriteString(m.confirmFooter)
	return sb.String()
}

// ProjectFailed is sent when the confirmed project could not be created.
func (r *ReplyComposer) ProjectFailed(lang string) string {
	return r.catalog(lang).projectFailed
}

// Help is the static fallback for unrecognized messages.
func (r *ReplyComposer) Help(lang string) string {
	return fmt.Sprintf(r.catalog(lang).help, r.productName)
}

// Apology is the generic reply for internal failures.
func (r *ReplyComposer) Apology(lang string) string {
	return r.catalog(lang).apology
}

// StateConflict is sent when a concurrent message won the dialogue update twice.
func (r *ReplyComposer) StateConflict(lang string) string {
	return r.catalog(lang).stateConflict
}

// Invalid names the field that failed validation.
func (r *ReplyComposer) Invalid(lang, field string) string {
	m := r.catalog(lang)
	name, ok := m.fields[field]
	if !ok {
		name = field
	}
	return fmt.Sprintf(m.invalidField, name)
}

// Result renders a command outcome.
func (r *ReplyComposer) Result(lang, currency string, res DispatchResult) string {
	m := r.catalog(lang)
	money := func(v int64) string { return FormatMoney(currency, v) }

	switch res.Kind {
	case OutcomeExpenseLogged:
		if res.Expense == nil {
			return m.apology
		}
		lines := []string{fmt.Sprintf(m.expenseLogged, money(res.Expense.Amount), res.Expense.Description, res.Expense.Category)}
		return strings.Join(append(lines, r.balance(m, money, res)...), "\n")

	case OutcomeTaskCreated:
		if res.Task == nil {
			return m.apology
		}
		lines := []string{fmt.Sprintf(m.taskCreated, res.Task.Title, res.Task.Priority)}
		if res.Task.DueDate != "" {
			lines = append(lines, fmt.Sprintf(m.taskDue, res.Task.DueDate))
		}
		lines = append(lines, fmt.Sprintf(m.pendingTasks, res.PendingTasks))
		return strings.Join(lines, "\n")

	case OutcomeBudgetSet:
		if res.Project == nil || res.Project.Budget == nil {
			return m.apology
		}
		lines := []string{fmt.Sprintf(m.budgetSet, money(*res.Project.Budget), res.Project.Name)}
		if res.PreviousBudget != nil {
			lines = append(lines, fmt.Sprintf(m.budgetPrev, money(*res.PreviousBudget)))
		}
		lines = append(lines, fmt.Sprintf(m.spentSoFar, money(res.Spent)))
		return strings.Join(append(lines, r.balance(m, money, res)...), "\n")

	case OutcomeSummary:
		return r.summary(m, money, res)

	case OutcomeImageLogged:
		name := ""
		if res.Project != nil {
			name = res.Project.Name
		}
		lines := []string{fmt.Sprintf(m.imageLogged, name, len(res.Images))}
		if res.Expense != nil {
			lines = append(lines, fmt.Sprintf(m.imageExpense, money(res.Expense.Amount), res.Expense.Description, res.Expense.Category))
			lines = append(lines, r.balance(m, money, res)...)
		}
		return strings.Join(lines, "\n")

	case OutcomeNoActiveProject:
		return m.noProject
	case OutcomeValidationFailed:
		return r.Invalid(lang, res.Field)
	case OutcomeMalformedAmount:
		return fmt.Sprintf(m.malformed, res.RawAmount)
	case OutcomePersistenceFailed:
		return m.apology
	}
	return r.Help(lang)
}

// balance is the remaining-budget block shared by the money outcomes.
func (r *ReplyComposer) balance(m messages, money func(int64) string, res DispatchResult) []string {
	if res.Remaining == nil {
		return []string{fmt.Sprintf(m.noBudget, money(res.Spent))}
	}
	var lines []string
	if *res.Remaining < 0 {
		lines = append(lines, fmt.Sprintf(m.overBudget, money(-*res.Remaining)))
	} else {
		lines = append(lines, fmt.Sprintf(m.remaining, money(*res.Remaining)))
	}
	if res.BudgetWarning && res.Project != nil && res.Project.Budget != nil {
		lines = append(lines, fmt.Sprintf(m.budgetWarning, FormatPercent(res.Spent, *res.Project.Budget)))
	}
	return lines
}

func (r *ReplyComposer) summary(m messages, money func(int64) string, res DispatchResult) string {
	name := ""
	if res.Project != nil {
		name = res.Project.Name
	}
	lines := []string{fmt.Sprintf(m.summaryTitle, name)}
	if res.Summary == nil || res.Summary.Count == 0 {
		lines = append(lines, m.summaryEmpty)
	} else {
		lines = append(lines, fmt.Sprintf(m.summaryTotal, money(res.Summary.Total), res.Summary.Count))
	}
	if res.Project != nil && res.Project.Budget != nil {
		lines = append(lines, fmt.Sprintf(m.summaryUsed, FormatPercent(res.Spent, *res.Project.Budget), money(*res.Project.Budget)))
	}
	if res.Summary != nil && len(res.Summary.ByCategory) > 0 {
		lines = append(lines, "", m.summaryTop)
		for i, c := range res.Summary.ByCategory {
			lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, c.Category, money(c.Total)))
		}
	}
	lines = append(lines, "")
	return strings.Join(append(lines, r.balance(m, money, res)...), "\n")
}
