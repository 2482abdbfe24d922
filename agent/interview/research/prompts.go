package research

// ArxivQueryTemplate turns a question into an arXiv keyword query. It is
// formatted with {query}.
const ArxivQueryTemplate = `Convert this natural language query into a simple ArXiv search query.

Guidelines:
- Keep the query simple and direct
- Use only the most important keywords
- Add quotes around multi-word phrases
- Remove unnecessary words (like "papers about", "research on", etc)
- Do not use any special operators (no AND, OR, etc)
- Do not use any field specifiers (no ti:, abs:, etc)
- Do not use category filters

Examples:
"Latest papers about transformers in NLP" -> "transformer neural language processing"
"Quantum computing error correction" -> "quantum error correction"
"Deep learning for computer vision" -> "deep learning computer vision"

Natural language query: {query}

ArXiv search query:`

// GradeTemplate is formatted with {context} and {question}.
const GradeTemplate = `You are a grader assessing relevance of a retrieved document to a research question.

Here are the retrieved documents:
{context}

Here is the research question:
{question}

If the documents contain relevant information, methodology, findings, or technical details related to the research question,
grade it as relevant. Consider both direct keyword matches and semantic/conceptual relevance.

Give a binary score 'yes' or 'no' to indicate whether the documents are relevant to the question.`

// RewriteTemplate is formatted with {question}.
const RewriteTemplate = `Look at the research question and try to reason about the underlying semantic intent and research goals.

Here is the initial question:
---
{question}
---

Formulate an improved research question that will help find more relevant papers:`

// GenerateTemplate writes the APA-cited answer. It is formatted with
// {context} and {question}.
const GenerateTemplate = `You are a research analyst tasked with answering questions based on the provided research papers. Use APA style for all citations and references.

CONTEXT PAPERS:
{context}

QUESTION:
{question}

GUIDELINES FOR ANALYSIS:

1. APA Citation Guidelines:
- In-text citations: (Author et al., Year) for 3+ authors, (Author & Author, Year) for 2
- For direct quotes: (Author et al., Year, p. X) or section name if no page number
- Multiple sources: List citations alphabetically (Author et al., Year; Author & Author, Year)
- First citation: Include all authors up to 3, then et al.
- Subsequent citations: Use et al. for 3+ authors

2. Source Attribution:
- Every claim must have an in-text citation
- Group multiple related citations in one parenthetical
- For synthesis, cite all relevant sources
- Use author-date format consistently

3. Direct Quotations (APA Style):
Short quotes (< 40 words):
"Quote" (Author et al., Year, p. X)

Block quotes (≥ 40 words):
Indent and cite: (Author et al., Year, p. X)

4. Multiple Source Citations:
- For similar findings:
Several studies (Author et al., Year; Author & Author, Year) found...
- For contrasting findings:
While Author et al. (Year) found X, Author and Author (Year) demonstrated Y...

5. Reference List Format (APA 7th Edition):
REQUIRED components for each reference:
a) Authors:
   - List all authors (up to 20)
   - Use last name, followed by initials
   - Use & for last author
   - Example: Smith, J. D., Johnson, R. M., & Williams, K. L.

b) Publication Date:
   - (YYYY, Month DD)
   - For preprints: (YYYY, Month DD). [Preprint]

c) Title:
   - Article title in sentence case
   - No quotation marks
   - Only capitalize first word and proper nouns

d) Source Information:
   - arXiv section/category
   - arXiv identifier
   - DOI (if available)

Complete Reference Format:
Author, A. A., Author, B. B., & Author, C. C. (YYYY, Month DD). Title of the article in sentence case. arXiv [Category]. https://doi.org/[DOI] or https://arxiv.org/abs/[identifier]

Example Reference:
Smith, J. D., Johnson, R. M., & Williams, K. L. (2023, March 15). Advances in transformer architectures for natural language processing. arXiv [cs.CL]. https://arxiv.org/abs/2303.12345

RESPONSE FORMAT:

Executive Summary:
[Concise answer with appropriate in-text citations]

Detailed Analysis:
1. Main Findings:
   - Finding with citation (Author et al., Year)
   - Supporting evidence with page numbers/sections
   - Integration of multiple sources

2. Methodological Approaches:
   - Methods used (Author et al., Year)
   - Implementation details with citations
   - Comparative analysis of approaches

3. Synthesis of Evidence:
   - Patterns across studies
   - Conflicting findings
   - Chronological development

4. Limitations and Future Directions:
   - Study-specific limitations (Author et al., Year)
   - General research gaps
   - Proposed future work

References:
[Full APA-style reference list]
- Must include ALL cited works
- Must be alphabetically ordered by first author's surname
- Must include ALL required components (authors, date, title, source)
- Must follow exact APA 7th Edition format
- Must include proper URLs/DOIs
- Must include arXiv categories
- Must be properly indented with hanging indent

Remember:
- EVERY paper cited in the text MUST have a complete reference entry
- References MUST include ALL required components
- References MUST be in perfect APA 7th Edition format
- References section MUST be at the end
- References MUST be alphabetically ordered
- Each reference MUST include proper arXiv identifiers and categories

Analysis:`

// NoPapersMessage is returned when arXiv has nothing for the query.
const NoPapersMessage = "I couldn't find any research papers matching your query. Could you try rephrasing it or being more specific?"
