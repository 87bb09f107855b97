package config

import "time"

// SafetyConfig holds content-policy data: crisis keywords, guardrail policy
// location, the pre-approved fallback message, and system prompts. All of it
// is data, not code, so the clinical team can tune it without a deploy.
type SafetyConfig struct {
	CrisisKeywords []string        `yaml:"crisis_keywords"`
	Guardrail      GuardrailConfig `yaml:"guardrail"`
	Prompts        PromptsConfig   `yaml:"prompts"`
}

type GuardrailConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
	FallbackMessage   string        `yaml:"fallback_message"`
}

type PromptsConfig struct {
	Default    string `yaml:"default"`
	Crisis     string `yaml:"crisis"`
	Vision     string `yaml:"vision"`
	Moderation string `yaml:"moderation"`
}

func DefaultSafety() *SafetyConfig {
	return &SafetyConfig{
		CrisisKeywords: []string{
			// self-harm
			"quero me matar",
			"me matar",
			"suicídio",
			"suicidio",
			"me machucar",
			"me cortar",
			"não aguento mais viver",
			"acabar com tudo",
			"kill myself",
			"end my life",
			"self harm",
			"suicide",
			// harm to infant
			"machucar meu bebê",
			"machucar o bebê",
			"machucar meu filho",
			"hurt my baby",
			"shake the baby",
			// violence / abuse
			"ele me bateu",
			"apanhei",
			"violência em casa",
			"me ameaçou",
			"abuso",
			"he hit me",
			"abused",
			// dissociation indicators
			"não me sinto real",
			"fora do meu corpo",
			"não sou eu mesma",
			"not real anymore",
			"outside my body",
		},
		Guardrail: GuardrailConfig{
			Enabled:           true,
			BundlePath:        "",
			EvaluationTimeout: 100 * time.Millisecond,
			FallbackMessage: "Sinto muito, não consegui elaborar uma boa resposta agora. " +
				"Se você estiver passando por um momento difícil, converse com alguém de confiança " +
				"ou com um profissional de saúde. Estou aqui quando quiser tentar de novo. 💛",
		},
		Prompts: PromptsConfig{
			Default: "Você é a Lua, assistente acolhedora do app Materna para gestantes e mães no pós-parto. " +
				"Responda em português, com empatia e linguagem simples. " +
				"Você não é profissional de saúde: nunca diagnostique condições nem prescreva medicamentos ou doses. " +
				"Para questões clínicas, oriente a procurar o médico ou a equipe de pré-natal.",
			Crisis: "Você é a Lua, assistente do app Materna, e a mensagem atual pode indicar sofrimento intenso ou risco. " +
				"Responda em português, com calma, acolhimento e sem julgamentos. Valide o que a pessoa sente. " +
				"Incentive buscar ajuda imediata: CVV 188 (24h, gratuito), SAMU 192 em emergências, ou alguém de confiança por perto. " +
				"Nunca diagnostique, nunca prescreva e nunca minimize o que foi dito.",
			Vision: "Você é a Lua, assistente do app Materna. A usuária enviou uma imagem. " +
				"Descreva o que é relevante para o contexto materno com cuidado e em português. " +
				"Se a imagem sugerir algo clínico (pele, ferida, exame), oriente a mostrar ao médico em vez de interpretar; " +
				"nunca diagnostique a partir da imagem.",
			Moderation: "Você analisa conteúdo da comunidade do app Materna. " +
				"Classifique o texto a seguir como adequado ou inadequado para um espaço de apoio a gestantes e mães, " +
				"apontando o motivo em uma frase. Responda em português.",
		},
	}
}
