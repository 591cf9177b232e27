package descriptor

// Fixed role-structured prompts. The wording is part of the retrieval
// contract: changing it shifts the distribution of feature text that gets
// embedded and therefore which songs come back.
const (
	describeSystemPrompt = "You are a photography expert. Think step by step and analyze photos " +
		"looking at perspective, lighting, content, and focus to answer questions."

	describeUserPrompt = "Describe the content, emotion, and general vibe of this photo using words " +
		"that could also be used to describe music. Take that description and condense it down " +
		"to 10-15 words about the mood vibe and location"

	keywordsSystemPrompt = "You are a helpful assistant that generates keywords for music playlists " +
		"based on photo descriptions."

	keywordsUserPrompt = "Distill this information down to 10 to 15 key words about the vibe and location. " +
		"Only give me the 10-15 key words that could also be used to describe music. " +
		"Do not give any other response: "

	featuresSystemPrompt = "You are a spotify music expert that generates values from descriptions " +
		"to be used to create spotify playlists."

	featuresUserPrompt = "Take these descriptive words and generate a set of 4 values between 0 and 1 " +
		"with a precision of 2. These values will represent danceability, energy, liveness, and valence. " +
		"Also generate a suggested tempo. Provide the values and nothing else: "

	featuresFormatHint = `Format your response as a JSON object with the following structure: ` +
		`{"danceability": float, "energy": float, "liveness": float, "valence": float, "tempo": integer}`
)
