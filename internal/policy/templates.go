package policy

// Template 是一份可直接采用的预置策略文档。
type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Policy      Document `json:"policy"`
}

var builtinTemplates = []Template{
	{
		ID:          "template-1",
		Name:        "Conservative Daily Transfer",
		Description: "Safe daily transfers with business hours and low gas requirements",
		Category:    "transfer-bot",
		Policy: Document{
			Version:     DocumentVersion,
			Name:        "Conservative Daily Transfer",
			Description: "Safe daily transfers with business hours and low gas requirements",
			Limits: Limits{
				Amount:   "50",
				Currency: "USDC",
				Period:   PeriodDaily,
			},
			Conditions: &Conditions{
				TimeWindow: &TimeWindowCondition{
					Days:      []int{1, 2, 3, 4, 5},
					StartHour: 9,
					EndHour:   17,
					Timezone:  "America/New_York",
				},
				Signals: &SignalsCondition{
					Gas: &GasCondition{MaxGwei: 50},
				},
			},
		},
	},
	{
		ID:          "template-2",
		Name:        "24/7 Trading Bot",
		Description: "Higher limits for automated trading around the clock",
		Category:    "transfer-bot",
		Policy: Document{
			Version:     DocumentVersion,
			Name:        "24/7 Trading Bot",
			Description: "Higher limits for automated trading around the clock",
			Limits: Limits{
				Amount:   "1000",
				Currency: "USDC",
				Period:   PeriodDaily,
			},
		},
	},
	{
		ID:          "template-3",
		Name:        "Whitelist-Only Transfers",
		Description: "Only allow transfers to pre-approved addresses with rate limiting",
		Category:    "transfer-bot",
		Policy: Document{
			Version:     DocumentVersion,
			Name:        "Whitelist-Only Transfers",
			Description: "Only allow transfers to pre-approved addresses with rate limiting",
			Limits: Limits{
				Amount:   "500",
				Currency: "USDC",
				Period:   PeriodWeekly,
			},
			Conditions: &Conditions{
				Recipients: &RecipientsCondition{
					Allowed: []string{
						"0x0000000000000000000000000000000000000001",
						"0x0000000000000000000000000000000000000002",
						"0x0000000000000000000000000000000000000003",
					},
				},
				Cooldown: &CooldownCondition{Seconds: 3600},
			},
		},
	},
	{
		ID:          "template-4",
		Name:        "Emergency Budget",
		Description: "Minimal spending for emergency situations",
		Category:    "transfer-bot",
		Policy: Document{
			Version:     DocumentVersion,
			Name:        "Emergency Budget",
			Description: "Minimal spending for emergency situations",
			Limits: Limits{
				Amount:   "10",
				Currency: "USDC",
				Period:   PeriodDaily,
			},
			Conditions: &Conditions{
				Cooldown: &CooldownCondition{Seconds: 21600},
			},
		},
	},
}

// Templates 返回全部预置模板的副本。
func Templates() []Template {
	out := make([]Template, len(builtinTemplates))
	copy(out, builtinTemplates)
	return out
}

// TemplateByName 按名称查找模板。
func TemplateByName(name string) (Template, bool) {
	for _, t := range builtinTemplates {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}
