package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/kbchat/internal/model/knowledgebase"
)

// maxContextChars 限制注入系统提示的文档长度。
const maxContextChars = 12000

// BuildSystemPrompt grounds the model in the documents of a knowledge base.
func BuildSystemPrompt(kb knowledgebase.KnowledgeBase) string {
	name := kb.Name
	if name == "" {
		name = kb.ID
	}

	var docs strings.Builder
	for i, doc := range kb.Documents {
		entry := fmt.Sprintf("[%d] %s\n%s\n\n", i+1, doc.Title, strings.TrimSpace(doc.Content))
		if docs.Len()+len(entry) > maxContextChars {
			break
		}
		docs.WriteString(entry)
	}

	if docs.Len() == 0 {
		return fmt.Sprintf(`You are the support assistant for "%s".
No documents are available. Tell the user politely that you do not have information on the topic.`, name)
	}

	return fmt.Sprintf(`You are the support assistant for "%s".
Answer only from the documents below. Keep answers short and in plain text.
If the documents do not contain the answer, say that you do not know.

Documents:
%s`, name, strings.TrimSpace(docs.String()))
}
