// Package fetchxml compiles query.QueryExpression trees into FetchXML, the
// markup the platform's Web API accepts in the fetchXml query parameter.
//
// Compile is a pure function: no I/O, no shared state, no errors. It writes
// the whole document into a single strings.Builder by recursive descent over
// the query tree, one element per tree node:
//
//	<fetch version="1.0" output-format="xml-platform" mapping="logical" [top] [distinct] [no-lock] [count page paging-cookie]>
//	  <entity name="...">
//	    <all-attributes /> | <attribute name="..." />*
//	    <filter type="and|or"> <condition .../>* <filter .../>* </filter>
//	    <link-entity name from to link-type [alias]> ... </link-entity>*
//	    <order attribute="..." [descending="true"] />*
//	  </entity>
//	</fetch>
//
// Sequence order in the tree is preserved verbatim. Filters whose subtree
// holds no condition are omitted at every depth. Every value placed in an
// attribute or text node is escaped for the five reserved XML characters.
//
// Compile assumes a tree accepted by query.Validate. Callers holding trees
// built outside the query constructors should validate first.
package fetchxml
