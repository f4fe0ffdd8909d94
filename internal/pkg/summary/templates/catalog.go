// Package templates is the compiled-in, layered prompt template catalog
// keyed by (category, prompt_type, locale, content_style), replacing the
// teacher's external template-fetch step with a static catalog — this
// system has no template-hub service to call.
package templates

import "strings"

// Key identifies one template slot.
type Key struct {
	Category     string // summary_style, e.g. "meeting", "general"
	PromptType   string // "overview", "key_points", "action_items", "chapters", "visual_mindmap", "visual_timeline", "visual_flowchart"
	Locale       string // "zh", "en"
	ContentStyle string // optional further refinement, e.g. "concise"
}

var catalog = map[Key]string{
	{"general", "overview", "zh", ""}:      "{quality_notice}请用简洁的中文总结以下内容的核心要点：\n\n{transcript}",
	{"general", "overview", "en", ""}:      "{quality_notice}Summarize the key points of the following content concisely:\n\n{transcript}",
	{"general", "key_points", "zh", ""}:    "{quality_notice}请从以下内容中提取关键要点，以条目形式列出：\n\n{transcript}",
	{"general", "key_points", "en", ""}:    "{quality_notice}Extract the key points from the following content as a bulleted list:\n\n{transcript}",
	{"general", "action_items", "zh", ""}:  "{quality_notice}请从以下内容中提取可执行的行动项：\n\n{transcript}",
	{"general", "action_items", "en", ""}:  "{quality_notice}Extract actionable action items from the following content:\n\n{transcript}",
	{"general", "chapters", "zh", ""}:      "{quality_notice}请将以下内容划分为章节，以 JSON 格式返回 {total_chapters, chapters:[{index,title,start_offset,end_offset,summary}]}：\n\n{transcript}",
	{"general", "chapters", "en", ""}:      "{quality_notice}Segment the following content into chapters, returning JSON {total_chapters, chapters:[{index,title,start_offset,end_offset,summary}]}:\n\n{transcript}",
	{"general", "visual_mindmap", "zh", ""}: "{quality_notice}请根据以下内容生成一个 mermaid mindmap 图表源码：\n\n{transcript}",
	{"general", "visual_mindmap", "en", ""}: "{quality_notice}Generate mermaid mindmap diagram source from the following content:\n\n{transcript}",
	{"general", "visual_timeline", "zh", ""}: "{quality_notice}请根据以下内容生成一个 mermaid timeline 图表源码：\n\n{transcript}",
	{"general", "visual_timeline", "en", ""}: "{quality_notice}Generate mermaid timeline diagram source from the following content:\n\n{transcript}",
	{"general", "visual_flowchart", "zh", ""}: "{quality_notice}请根据以下内容生成一个 mermaid flowchart 图表源码：\n\n{transcript}",
	{"general", "visual_flowchart", "en", ""}: "{quality_notice}Generate mermaid flowchart diagram source from the following content:\n\n{transcript}",

	{"meeting", "overview", "zh", ""}:     "{quality_notice}这是一段会议记录，请总结会议的主要议题与结论：\n\n{transcript}",
	{"meeting", "action_items", "zh", ""}: "{quality_notice}请从以下会议记录中提取待办事项及负责人（如提及）：\n\n{transcript}",
	{"learning", "overview", "zh", ""}:    "{quality_notice}这是一段学习/课程内容，请总结核心知识点：\n\n{transcript}",
	{"interview", "overview", "zh", ""}:   "{quality_notice}这是一段访谈记录，请总结受访者的主要观点：\n\n{transcript}",
	{"lecture", "overview", "zh", ""}:     "{quality_notice}这是一段讲座内容，请总结讲座的核心论点：\n\n{transcript}",
	{"podcast", "overview", "zh", ""}:     "{quality_notice}这是一段播客内容，请总结讨论的主要话题：\n\n{transcript}",
	{"video", "overview", "zh", ""}:       "{quality_notice}这是一段视频内容，请总结视频的主要内容：\n\n{transcript}",
}

// QualityNotice is injected in place of {quality_notice} when the
// transcript's quality score is low.
var QualityNotice = map[string]string{
	"zh": "注意：原始转录质量较低，总结可能存在误差。\n\n",
	"en": "Note: the source transcript has low confidence; this summary may contain inaccuracies.\n\n",
}

// Lookup resolves a template with progressive fallback: exact category,
// then the "general" category for the same prompt_type/locale — a
// summary style that has no bespoke template still gets a usable one.
func Lookup(k Key) (string, bool) {
	if t, ok := catalog[k]; ok {
		return t, true
	}
	general := Key{Category: "general", PromptType: k.PromptType, Locale: k.Locale}
	if t, ok := catalog[general]; ok {
		return t, true
	}
	// last resort: English general template, covers an unsupported locale
	// reaching this deep (the orchestrator clamps the task language to
	// zh/en before calling the summary generator).
	t, ok := catalog[Key{Category: "general", PromptType: k.PromptType, Locale: "en"}]
	return t, ok
}

// Render substitutes {transcript} and {quality_notice} into a template.
func Render(tmpl, transcript string, lowQuality bool, locale string) string {
	notice := ""
	if lowQuality {
		notice = QualityNotice[locale]
	}
	out := strings.ReplaceAll(tmpl, "{quality_notice}", notice)
	out = strings.ReplaceAll(out, "{transcript}", transcript)
	return out
}
