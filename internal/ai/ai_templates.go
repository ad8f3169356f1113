package ai

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/shanehull/insightpipe/internal/types"
)

// insightInstruction is the fixed field contract sent with every article. The
// fallback rules ("None" for text, 0 for numbers) are what keep every field
// present in the response, so edits here change the shape of the wide table.
const insightInstruction = `
You are an expert research analyst helping extract **structured insights** from technical articles. Your goal is to return detailed, meaningful fields in **flat JSON format** (no nesting), suitable for a Looker Studio dashboard.

Return ONLY valid JSON. Do NOT include explanations, markdown, or text outside the JSON. Do NOT omit available details.

Below are the detailed field-level instructions for extraction:

- "article_id": Unique identifier Hash number.
- "title": Use exact title from the article metadata.
- "link": Original article URL.
- "author": Comma-separated full names of the author(s). If unavailable, return "None".
- "publication_date": Extract in YYYY-MM-DD format using the article URL (e.g., /2024/12/01/ → 2024-12-01).
- "source": Publication name (e.g., TechCrunch, Wired).
- "summary": A clear 1-2 sentence summary covering the **main focus** or announcement.
- "keywords": Extract and prioritize top 3 relevant terms like technologies, companies, concepts (e.g., Generative AI, Series A, Mistral AI).
- "sentiment_score": Float value between -1 and 1. Analyze overall tone (e.g., optimistic growth → 0.7).
- "sentiment_percentage": Float 0-100 representing absolute sentiment intensity (e.g., strong positive = 85.0).
- "sentiment_analysis": One of: "Positive", "Neutral", or "Negative".
- "topics": Comma-separated high-level topics (e.g., Venture Capital, Data Privacy, Robotics).
- "people": Names of key individuals mentioned (e.g., Elon Musk, Sam Altman). If none, return "None".
- "organizations": List all companies/institutions mentioned (e.g., Nvidia, OpenAI, Y Combinator).
- "locations": City and Country where the news/initiative/event/product is based or relevant. Format: "San Francisco, USA". If none, return "None".
- "products": List the key products, platforms, services, or tools mentioned in the article. These can include newly launched products, existing market leaders, proprietary technologies, beta features, or services being shut down or acquired. Prioritize naming the actual product over just the company name. Example: 'ChatGPT, Claude 3, Gemini, Humane AI Pin, Microsoft Copilot'. If no products are clearly mentioned, return 'None'.
- "events": Major events or launches (e.g., CES 2024, Series A Funding). If none, return "None".
- "Business": Determine whether the article primarily discusses a B2B (business-to-business) or B2C (business-to-consumer) model. Base this on the nature of any mentioned products, innovations, services, or company offerings and **who they are intended for**. If the target customers are businesses (e.g., SaaS tools, enterprise solutions), return 'B2B'. If the target customers are individual consumers (e.g., mobile apps, wearables, health platforms), return 'B2C'. If it's unclear or not mentioned, return 'None'.
- "funding_rounds": Comma-separated stages like "Pre-Seed, Series A". Only include valid rounds. If none, return "None".
- "investors": Names of VCs or investors (e.g., Sequoia Capital, a16z). Return "None" if not specified.
- "financial_metrics": Convert **all monetary figures** to float values in **Million USD** (e.g., $1.5B = 1500.0, $750K = 0.75).
- "sectors": Assign **one specific and standardized sector** from the following predefined list. Do not use vague or generic words like 'AI' or 'Technology'. Synonyms should be normalized (e.g., 'Health AI', 'AI in Healthcare' → 'Healthcare AI'). Select the best-fitting option from:

- Healthcare AI
- Fintech AI
- Agritech
- Edtech
- Retail Tech
- Cybersecurity
- Generative AI
- Robotics & Automation
- AI Governance
- Digital Health
- Legal Tech
- AI in Marketing
- Smart Mobility
- AI in Real Estate
- AI in Manufacturing
- Climate Tech
- Energy Tech
- Space Tech
- Construction Tech
- Supply Chain & Logistics
- Transportation Tech
- Urban Tech
- Cleantech
- Food Tech
- BioTech
- Quantum Computing
- Neuroscience Tech
- Materials Science
- Precision Medicine
- Longevity Tech

- "sub_sectors": More detailed sector level (e.g., Mental Health Platforms, RegTech, Supply Chain Robotics).
- "innovations": Comma-separated list of novel technologies, methods, business models, or product ideas mentioned in the article. These could be newly launched or proposed innovations, or even *implied* innovations based on trends and gaps. Highlight anything that could have the potential to become the next big breakthrough. Examples: 'Decentralized AI training on smartphones', 'Synthetic data generation for rare disease modeling', 'Zero-trust architecture for AI APIs'. Think beyond obvious features and include creative or disruptive ideas that might not yet be fully developed. Wrap Innovations in as few words as possible without any commas.
- "trends": Comma-separated list of emerging and established trends mentioned or implied in the article. These should reflect what is gaining momentum in the market, particularly in AI and tech. Examples: 'Generative AI', 'AI Copilots', 'Real-time Compliance', 'AI-Powered Legal Tools'. Only include trends that are contextually relevant and visible in the article. Wrap Trends in as few words as possible without any commas.
- "market_gaps": Comma-separated list of any clearly stated or implied market gaps in the article. These are areas where there is unmet demand, lack of innovation, underserved users, inefficient solutions, or emerging needs not yet addressed by current players. Market gaps can be inferred from problems discussed, limitations of current solutions, customer pain points, or missed opportunities. Examples include: 'Lack of privacy-first tools for Gen Z', 'No affordable AI-powered legal assistant for small firms', or 'Rural regions still lack access to AI-driven healthcare diagnostics'. Wrap market gaps in as few words as possible without any commas. If no meaningful market gaps are mentioned or implied, return 'None'.
- "competitor_analysis": Include comparisons or competitive mentions (e.g., "Anthropic competes with OpenAI").
- "customer_insights": Identify what consumers, developers, or businesses are struggling with, demanding, or reacting positively/negatively to. These are clues to what the market truly values or lacks. Examples: 'High demand for transparent AI decision-making', 'Startups prefer privacy-first AI models', 'Users are overwhelmed by data compliance complexity'.
- "relevance_score": Float 1-10 based on relevance to AI and emerging technology (10 = extremely relevant).
- "severity_score": Float 1-10 measuring the **impactfulness** or disruption potential of the content.

IMPORTANT:
- Do NOT skip any fields. If no value found, use "None" or 0 as appropriate.
- Follow all instructions carefully. Return a valid flat JSON object only.
- Focus on identifying innovations with disruptive potential: not just current solutions, but also ideas *hinted at* by market needs, pain points, and future demand.
- You are identifying opportunities for new innovation. Think like a startup founder scanning for:
    - Problems worth solving
    - Unmet customer needs
    - Gaps between current offerings and future demand
    - Patterns in emerging trends
    Your output should reflect strategic thinking beyond what is explicitly said.
- Wrap up market gaps, Trends, Innovations in as few words as possible without any commas in a single sentence.
`

const promptTemplate = "%s\n\nArticle Metadata:\n%s\n\nArticle Content:\n\"\"\"\n%s\n\"\"\""

var urlDatePattern = regexp.MustCompile(`/(\d{4})/(\d{2})/(\d{2})/`)

type articleMetadata struct {
	ArticleID       string `json:"article_id"`
	Title           string `json:"title"`
	Link            string `json:"link"`
	Author          string `json:"author"`
	PublicationDate string `json:"publication_date"`
	Source          string `json:"source"`
}

func buildPrompt(article types.ArticleDetail, maxChars int) (string, error) {
	meta := articleMetadata{
		ArticleID:       ArticleID(article.URL),
		Title:           article.Title,
		Link:            article.URL,
		Author:          article.AuthorOr("None"),
		PublicationDate: DateFromURL(article.URL),
		Source:          SourceName(article.URL),
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode article metadata: %w", err)
	}

	return fmt.Sprintf(promptTemplate, insightInstruction, metaJSON, cleanContent(article.Content, maxChars)), nil
}

// ArticleID is the last non-empty path segment of the article URL.
func ArticleID(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	segments := strings.Split(strings.TrimRight(path, "/"), "/")
	return segments[len(segments)-1]
}

// DateFromURL returns the YYYY-MM-DD date embedded in an article URL, or
// "Unknown".
func DateFromURL(rawURL string) string {
	m := urlDatePattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "Unknown"
	}
	return m[1] + "-" + m[2] + "-" + m[3]
}

// SourceName turns "https://www.techcrunch.com/..." into "Techcrunch".
func SourceName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	label := strings.Split(strings.ReplaceAll(u.Hostname(), "www.", ""), ".")[0]
	if label == "" {
		return ""
	}
	return strings.ToUpper(label[:1]) + strings.ToLower(label[1:])
}

func cleanContent(content string, maxChars int) string {
	content = strings.TrimSpace(content)
	content = strings.ReplaceAll(content, "\n", " ")
	content = strings.ReplaceAll(content, `\`, "")

	if maxChars > 0 {
		runes := []rune(content)
		if len(runes) > maxChars {
			content = string(runes[:maxChars])
		}
	}
	return content
}
