package mapping

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/amirbrooks/taskport/internal/coerce"
	"github.com/amirbrooks/taskport/internal/model"
)

// Rule maps every column whose match key satisfies Pattern onto Target.
type Rule struct {
	Pattern   *regexp.Regexp
	Target    string
	Required  bool
	Default   *Default
	Transform Transform
}

func rule(pattern, target string, kind TransformKind) Rule {
	return Rule{Pattern: regexp.MustCompile(pattern), Target: target, Transform: Transform{Kind: kind}}
}

func (r Rule) required() Rule {
	r.Required = true
	return r
}

func (r Rule) withDefault(v any) Rule {
	r.Default = StaticDefault(v)
	return r
}

// Patterns see MatchKey output, so they only need lowercase alphanumerics. Order
// matters: the first matching rule wins.
var catalog = []Rule{
	rule(`^(id|uid|uuid|guid|key|identifier|recordid|itemid|taskid)$`, "id", TransformNone),
	rule(`^(type|kind|recordtype|itemtype|entity|entitytype)$`, "type", TransformNone),
	rule(`^(title|name|taskname|task|subject|heading|item|subtask)$`, "title", TransformNone).required(),
	rule(`^(description|desc|details|summary|body)$`, "description", TransformNone),
	rule(`^(content|text|markdown|notecontent|notebody)$`, "content", TransformNone),
	rule(`^(notes?|comments?|remarks|memo)$`, "notes", TransformNone),
	rule(`^(status|state|stage|progress|taskstatus)$`, "status", TransformNormalizeStatus).withDefault(model.StatusPending),
	rule(`^(priority|prio|pri|importance|urgency)$`, "priority", TransformNormalizePriority).withDefault(model.PriorityMedium),
	rule(`^(tags?|labels?|keywords|hashtags)$`, "tags", TransformParseList),
	rule(`^(category|categories|group|section|area)$`, "category", TransformNone),
	rule(`^(colou?r|hex|colorhex|colou?rcode)$`, "color", TransformNone),
	rule(`^(isfavou?rite|favou?rite|starred|star|pinned)$`, "isFavorite", TransformParseBool),
	rule(`^(isarchived|archived|hidden)$`, "isArchived", TransformParseBool),
	rule(`^(taskcount|taskscount|numtasks|count)$`, "taskCount", TransformParseNumber),
	rule(`^(collaborators?|members|sharedwith|participants|team)$`, "collaborators", TransformParseList),
	rule(`^(notebookid|notebook|project|projectid|list|listid|folder)$`, "notebookId", TransformNone),
	rule(`^(parenttaskid|ownertask|ownertaskid)$`, "parentTaskId", TransformNone),
	rule(`^(parentid|parent)$`, "parentId", TransformNone),
	rule(`^(assignee|assignedto|assigned|owner|responsible)$`, "assignee", TransformNone),
	rule(`^(estimatedhours|estimate|estimated|esthours|estimatehours|effort)$`, "estimatedHours", TransformParseNumber),
	rule(`^(actualhours|actual|timespent|hoursspent|spent|loggedhours)$`, "actualHours", TransformParseNumber),
	rule(`^(due|duedate|deadline|dueby|dueon|duedatetime)$`, "dueDate", TransformParseDate),
	rule(`^(completedat|completedon|completiondate|donedate|finishedat|completeddate)$`, "completedAt", TransformParseDate),
	rule(`^(completed|done|iscompleted|isdone|checked|finished)$`, "completed", TransformParseBool),
	rule(`^(createdat|created|createdon|datecreated|creationdate|added|dateadded)$`, "createdAt", TransformParseDate),
	rule(`^(updatedat|updated|updatedon|modified|modifiedat|lastmodified|datemodified|lastupdated)$`, "updatedAt", TransformParseDate),
	rule(`^(subtasks|checklist|checklistitems|children|steps)$`, "subtasks", TransformSubtasks),
	rule(`^(customfields|custom|extra|extrafields|properties)$`, "customFields", TransformObject),
}

// Rules returns a copy of the built-in catalog in match order.
func Rules() []Rule {
	return append([]Rule(nil), catalog...)
}

// Match returns the first catalog rule for column.
func Match(column string) (Rule, bool) {
	key := coerce.MatchKey(column)
	for _, r := range catalog {
		if r.Pattern.MatchString(key) {
			return r, true
		}
	}
	return Rule{}, false
}

// Generate proposes one mapping per column. Unmatched columns, and columns whose target
// is already taken by an earlier column, pass through as custom fields. Dotted columns
// under a customFields object map straight to the nested key.
func Generate(columns []string) []FieldMapping {
	out := make([]FieldMapping, 0, len(columns))
	taken := map[string]bool{}
	for _, col := range columns {
		m := mappingFor(col)
		if taken[m.TargetField] {
			m = customMapping(col, CustomPrefix+coerce.SanitizeFieldName(col))
		}
		if taken[m.TargetField] {
			continue
		}
		taken[m.TargetField] = true
		out = append(out, m)
	}
	return out
}

func mappingFor(col string) FieldMapping {
	if prefix, rest, ok := strings.Cut(col, "."); ok && rest != "" {
		if r, matched := Match(prefix); matched && r.Transform.Kind == TransformObject {
			return customMapping(col, CustomPrefix+rest)
		}
		return customMapping(col, CustomPrefix+coerce.SanitizeFieldName(col))
	}
	r, ok := Match(col)
	if !ok {
		return customMapping(col, CustomPrefix+coerce.SanitizeFieldName(col))
	}
	return FieldMapping{
		SourceField: col,
		TargetField: r.Target,
		Required:    r.Required,
		Default:     r.Default,
		Transform:   r.Transform,
	}
}

func customMapping(col, target string) FieldMapping {
	return FieldMapping{SourceField: col, TargetField: target}
}

// DefaultCacheSize bounds the Generator cache when no size is configured.
const DefaultCacheSize = 128

// Generator memoizes Generate per column list. Imports of the same export layout hit
// the cache; every call still gets its own slice.
type Generator struct {
	cache *lru.Cache[string, []FieldMapping]
}

// NewGenerator returns a Generator caching up to size column lists. size <= 0 uses
// DefaultCacheSize.
func NewGenerator(size int) *Generator {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []FieldMapping](size)
	if err != nil {
		// only fails for size <= 0
		return &Generator{}
	}
	return &Generator{cache: cache}
}

// Generate is the cached form of the package-level Generate.
func (g *Generator) Generate(columns []string) []FieldMapping {
	if g == nil || g.cache == nil {
		return Generate(columns)
	}
	key := strings.Join(columns, "\x1f")
	if cached, ok := g.cache.Get(key); ok {
		return append([]FieldMapping(nil), cached...)
	}
	mappings := Generate(columns)
	g.cache.Add(key, append([]FieldMapping(nil), mappings...))
	return mappings
}

// Len reports how many column lists are cached.
func (g *Generator) Len() int {
	if g == nil || g.cache == nil {
		return 0
	}
	return g.cache.Len()
}
