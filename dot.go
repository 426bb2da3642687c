package nnet

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/awalterschulze/gographviz"
)

type dotNode struct {
	Component
	Index  int
	Params int
}

// ToDot renders the network as a graphviz digraph. The branches of a
// ParallelComponent are drawn as clusters between a fan-out and a fan-in node.
func (n *Nnet) ToDot() string {
	g := gographviz.NewGraph()
	if err := g.SetName("G"); err != nil {
		panic(err)
	}
	g.SetDir(true)
	g.AddNode("G", "input", map[string]string{"shape": "ellipse", "label": fmt.Sprintf(`"input (%d)"`, n.InputDim())})
	last := n.addDot(g, "G", "n", "input")
	g.AddNode("G", "output", map[string]string{"shape": "ellipse", "label": fmt.Sprintf(`"output (%d)"`, n.OutputDim())})
	g.AddEdge(last, "output", true, nil)
	return g.String()
}

// addDot adds the components of n to graph, chained after from, and returns the
// name of the last node added.
func (n *Nnet) addDot(g *gographviz.Graph, graph, prefix, from string) string {
	var buf bytes.Buffer
	for i, c := range n.components {
		name := fmt.Sprintf("%s%d", prefix, i)
		dn := dotNode{Component: c, Index: i + 1}
		if u, ok := c.(Updatable); ok {
			dn.Params = u.NumParams()
		}
		buf.Reset()
		dotTmpl.Execute(&buf, dn)
		g.AddNode(graph, name, map[string]string{
			"fontname": "Monaco",
			"shape":    "none",
			"label":    buf.String(),
		})
		g.AddEdge(from, name, true, nil)
		from = name

		p, ok := c.(*ParallelComponent)
		if !ok {
			continue
		}
		join := name + "_join"
		for b, nested := range p.nnets {
			cluster := fmt.Sprintf("cluster_%s_%d", name, b)
			g.AddSubGraph(graph, cluster, map[string]string{"label": fmt.Sprintf(`"nested_network #%d"`, b+1)})
			end := nested.addDot(g, cluster, fmt.Sprintf("%s_%d_", name, b), name)
			g.AddEdge(end, join, true, nil)
		}
		g.AddNode(graph, join, map[string]string{"shape": "point"})
		from = join
	}
	return from
}

const dotTmplRaw = `<
<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0">
<TR><TD COLSPAN="2">{{.Index}}. {{html .Type.String}}</TD></TR>
<TR><TD>In</TD><TD>{{.InputDim}}</TD></TR>
<TR><TD>Out</TD><TD>{{.OutputDim}}</TD></TR>
{{if .Params}}<TR><TD>Params</TD><TD>{{.Params}}</TD></TR>
{{end}}</TABLE>
>`

var dotTmpl *template.Template

func init() {
	dotTmpl = template.Must(template.New("component").Parse(dotTmplRaw))
}
