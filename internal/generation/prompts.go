package generation

import "fmt"

func topicPrompt(title string) string {
	return fmt.Sprintf(`Generate a learning guide for broad and deep understanding of various aspects of the topic "%s".

Respond with a single JSON object in exactly this shape:
{
  "summary": "Three sentences with the most important things to know about the topic",
  "sections": [
    {
      "category": "Aspect name",
      "facts": ["Fact 1", "Fact 2", "Fact 3"]
    }
  ],
  "relatedTopics": ["Related topic 1", "Related topic 2", "Related topic 3"]
}

Include 3 to 5 related topics. Do not wrap the JSON in markdown code fences.`, title)
}

func relatedPrompt(title string) string {
	return fmt.Sprintf(`List exactly 3 topics closely related to "%s" that someone learning it should explore next.

Respond with only a JSON array of 3 strings, for example ["Topic A", "Topic B", "Topic C"]. Do not wrap the JSON in markdown code fences.`, title)
}

func detailPrompt(title, fact string) string {
	return fmt.Sprintf(`I am learning about "%s". In this context tell me more about: %s
`+detailShape, title, fact)
}

// detailShape is appended to every detail prompt, overrides included.
const detailShape = `
Respond with a single JSON object in exactly this shape:
{
  "caption": "Short title",
  "points": ["Knowledge nugget 1", "Knowledge nugget 2", "Knowledge nugget 3"]
}
Do not wrap the JSON in markdown code fences.`

// VideoPrompt asks for the key takeaways of a video search result.
func VideoPrompt(title, description, url string) string {
	return fmt.Sprintf(`Tell me more about key takeaways from the video with title "%s", description: %s and url: %s`,
		title, description, url)
}

// BookPrompt asks for the key ideas of a book search result.
func BookPrompt(title, authors, description, url string) string {
	return fmt.Sprintf(`Tell me more about the book "%s" by %s with description: %s and url: %s`,
		title, authors, description, url)
}

// WikiPrompt asks for the things to know from an encyclopedia page.
func WikiPrompt(title, text string) string {
	return fmt.Sprintf(`I am reading the Wikipedia page for "%s". List out things to know from the text: %s
For longer pages a longer list of things to know is better.`, title, text)
}
